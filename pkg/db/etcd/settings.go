// Package etcd stores settings records in etcd, one key per record.
package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opst/scalarboard/pkg/db"
	xe "github.com/opst/scalarboard/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const DefaultPrefix = "/scalarboard/settings/"

type Config struct {
	Endpoints []string
	Prefix    string
	Timeout   time.Duration
}

type etcdSettings struct {
	kv      clientv3.KV
	prefix  string
	timeout time.Duration
	closer  func() error
}

var _ db.SettingsInterface = &etcdSettings{}

type Settings interface {
	db.SettingsInterface
	Close() error
}

// New connects to etcd.
func New(cfg Config) (Settings, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, xe.New("etcd: at least one endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, xe.Wrap(err)
	}

	s := Wrap(client, cfg.Prefix, timeout).(*etcdSettings)
	s.closer = client.Close
	return s, nil
}

// Wrap makes Settings on a KV. Keys of records are prefixed with prefix.
//
// Each request is bounded by timeout, if it is positive.
func Wrap(kv clientv3.KV, prefix string, timeout time.Duration) Settings {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &etcdSettings{kv: kv, prefix: prefix, timeout: timeout}
}

func (s *etcdSettings) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *etcdSettings) Load(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", db.ErrMissing, key)
	}
	return resp.Kvs[0].Value, nil
}

func (s *etcdSettings) Save(ctx context.Context, key string, body []byte) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.kv.Put(ctx, s.prefix+key, string(body)); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (s *etcdSettings) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.kv.Delete(ctx, s.prefix+key); err != nil {
		return xe.Wrap(err)
	}
	return nil
}

func (s *etcdSettings) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
