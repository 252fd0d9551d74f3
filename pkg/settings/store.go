package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/scalarboard/pkg/db"
	xe "github.com/opst/scalarboard/pkg/errors"
	"github.com/opst/scalarboard/pkg/utils/retry"
)

// Store keeps settings records of every scope, and resolves effective settings.
//
// Writes are applied in memory at once, and persisted in background.
// Callers never wait for persistence.
type Store struct {
	mux      sync.Mutex
	records  map[string]Record
	known    map[string]bool
	versions map[string]uint64

	persist db.SettingsInterface
	backoff func() retry.Backoff
	logger  *log.Logger

	// keyLocks serializes persistence of each key.
	keyLocks sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
}

type Option func(*Store) *Store

// WithPersistence makes the store load and save records with p.
func WithPersistence(p db.SettingsInterface) Option {
	return func(s *Store) *Store {
		s.persist = p
		return s
	}
}

// WithBackoff sets how persistence is retried. newBackoff is called for each write.
func WithBackoff(newBackoff func() retry.Backoff) Option {
	return func(s *Store) *Store {
		s.backoff = newBackoff
		return s
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Store) *Store {
		s.logger = logger
		return s
	}
}

func NewStore(options ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		records:  map[string]Record{},
		known:    map[string]bool{},
		versions: map[string]uint64{},
		backoff: func() retry.Backoff {
			return retry.Limit(retry.ExponentialBackoff(200*time.Millisecond, 2), 5)
		},
		logger: log.New("settings"),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range options {
		s = opt(s)
	}
	return s
}

// Resolve effective settings for the scope.
func (s *Store) Resolve(scope Scope) Settings {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.resolve(scope)
}

func (s *Store) resolve(scope Scope) Settings {
	if !scope.ProjectLevel() {
		if r, ok := s.records[scope.Key()]; ok {
			return r.Overlay(Defaults())
		}
	}
	if r, ok := s.records[db.ProjectKey(scope.Project)]; ok {
		eff := r.Overlay(Defaults())
		eff.ProjectLevel = true
		return eff
	}
	d := Defaults()
	d.ProjectLevel = scope.ProjectLevel()
	return d
}

// Lookup returns the record stored for the key, as it is.
func (s *Store) Lookup(key string) (Record, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	r, ok := s.records[key]
	return r, ok
}

// Set merges changes into the record of the scope, and returns new effective settings.
//
// For an experiment without its own record, the record is created from
// the settings effective so far, so it shadows the project-level record from now on.
func (s *Store) Set(scope Scope, changes Record) Settings {
	s.mux.Lock()
	defer s.mux.Unlock()

	key := scope.Key()
	base, ok := s.records[key]
	if !ok {
		eff := s.resolve(scope)
		base = Of(eff)
	}
	s.put(key, base.Merge(changes).normalize())
	return s.resolve(scope)
}

// Promote copies effective settings of the experiment into its project,
// and removes the experiment-level record.
func (s *Store) Promote(scope Scope) (Settings, error) {
	if scope.ProjectLevel() {
		return Settings{}, xe.New("settings: promoting a project-level scope")
	}

	s.mux.Lock()
	defer s.mux.Unlock()

	eff := s.resolve(scope)
	s.put(db.ProjectKey(scope.Project), Of(eff).normalize())
	s.remove(scope.Key())
	return s.resolve(scope), nil
}

// Reset removes the experiment-level record, so that the project-level one takes effect.
func (s *Store) Reset(scope Scope) Settings {
	s.mux.Lock()
	defer s.mux.Unlock()
	if !scope.ProjectLevel() {
		s.remove(scope.Key())
	}
	return s.resolve(scope)
}

// Hydrate loads persisted records of the scope which are not known in memory yet.
//
// A record written in memory before loading completes wins over the persisted one.
func (s *Store) Hydrate(ctx context.Context, scope Scope) error {
	if s.persist == nil {
		return nil
	}

	keys := []string{db.ProjectKey(scope.Project)}
	if !scope.ProjectLevel() {
		keys = append(keys, scope.Key())
	}

	var errs []error
	for _, key := range keys {
		s.mux.Lock()
		known := s.known[key]
		s.mux.Unlock()
		if known {
			continue
		}

		body, err := s.persist.Load(ctx, key)
		if errors.Is(err, db.ErrMissing) {
			s.mux.Lock()
			s.known[key] = true
			s.mux.Unlock()
			continue
		} else if err != nil {
			errs = append(errs, xe.WrapWithNote(key, err))
			continue
		}

		var r Record
		if err := json.Unmarshal(body, &r); err != nil {
			errs = append(errs, xe.WrapWithNote(key, fmt.Errorf("broken record: %w", err)))
			continue
		}

		s.mux.Lock()
		if !s.known[key] {
			s.records[key] = r
			s.known[key] = true
		}
		s.mux.Unlock()
	}
	return errors.Join(errs...)
}

// Flush waits for background persistence to be done, or ctx to be done.
func (s *Store) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.bg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes, then abandons persistence still pending.
func (s *Store) Close(ctx context.Context) error {
	defer s.cancel()
	return s.Flush(ctx)
}

// put and remove should be called with s.mux locked.
func (s *Store) put(key string, r Record) {
	s.records[key] = r
	s.known[key] = true
	s.schedule(key, &r)
}

func (s *Store) remove(key string) {
	delete(s.records, key)
	s.known[key] = true
	s.schedule(key, nil)
}

// schedule persisting r (or deleting, when r is nil) as version of the key.
//
// A newer version supersedes older ones, which are then dropped without being written.
func (s *Store) schedule(key string, r *Record) {
	if s.persist == nil {
		return
	}
	s.versions[key] += 1
	version := s.versions[key]

	var body []byte
	if r != nil {
		b, err := json.Marshal(r)
		if err != nil {
			s.logger.Errorf("cannot marshal settings of %s: %+v", key, err)
			return
		}
		body = b
	}

	l, _ := s.keyLocks.LoadOrStore(key, &sync.Mutex{})
	keyLock := l.(*sync.Mutex)

	s.bg.Add(1)
	result := retry.Go(s.ctx, s.backoff(), func() (struct{}, error) {
		keyLock.Lock()
		defer keyLock.Unlock()

		if s.superseded(key, version) {
			return struct{}{}, nil
		}

		var err error
		if body == nil {
			err = s.persist.Delete(s.ctx, key)
		} else {
			err = s.persist.Save(s.ctx, key, body)
		}
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", retry.ErrRetry, err)
		}
		return struct{}{}, nil
	})

	go func() {
		defer s.bg.Done()
		if r := <-result; r.Err != nil {
			s.logger.Warnf("settings of %s (version %d) are not persisted: %+v", key, version, r.Err)
		}
	}()
}

func (s *Store) superseded(key string, version uint64) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.versions[key] != version
}
