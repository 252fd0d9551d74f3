// Package engine is the host-facing view of scalar charts for one scope at a time.
//
// A View fetches a catalog for its scope, resolves effective settings,
// and keeps chart groups up to date as settings and data change.
// Methods of a View are serialized; they may be called from any goroutine.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/scalarboard/pkg/autorefresh"
	"github.com/opst/scalarboard/pkg/axis"
	xe "github.com/opst/scalarboard/pkg/errors"
	"github.com/opst/scalarboard/pkg/fetch"
	"github.com/opst/scalarboard/pkg/grouping"
	"github.com/opst/scalarboard/pkg/metrics"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/scheduler"
	"github.com/opst/scalarboard/pkg/settings"
	"github.com/opst/scalarboard/pkg/smoothing"
)

// ErrNotOpened is returned by operations which need a scope before Open.
var ErrNotOpened = xe.New("view: no scope is opened")

// Line is a series drawn in a chart.
type Line struct {
	Variant string
	Points  []scalar.Point

	// Original is raw points, present when originals are shown.
	Original []scalar.Point
}

type Chart struct {
	Name    string
	Token   string
	Metric  string
	Summary bool

	Lines  []Line
	Values []scalar.SingleValue
}

// Display is for the selector of the side panel.
type Display struct {
	DisplayList []string
	Options     []grouping.Option
}

type View struct {
	mux sync.Mutex

	store    *settings.Store
	fetcher  fetch.Fetcher
	sched    *scheduler.Scheduler
	auto     *autorefresh.Controller
	recorder metrics.Recorder
	logger   *log.Logger

	firstLoadLimit int

	// generation is incremented on each scope switch.
	// Results of fetches issued for an older generation are discarded.
	generation uint64
	scope      settings.Scope
	opened     bool

	catalog  *scalar.Catalog
	smoothed map[scalar.Pair][]scalar.Point
	result   grouping.Result
	charts   []Chart
	lastErr  error

	ctx    context.Context
	cancel context.CancelFunc
}

type config struct {
	sched          *scheduler.Scheduler
	autoOptions    []autorefresh.Option
	recorder       metrics.Recorder
	logger         *log.Logger
	firstLoadLimit int
}

type Option func(*config) *config

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(c *config) *config {
		c.sched = s
		return c
	}
}

// WithAutoRefresh passes options to the auto-refresh controller of the view.
func WithAutoRefresh(options ...autorefresh.Option) Option {
	return func(c *config) *config {
		c.autoOptions = append(c.autoOptions, options...)
		return c
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(c *config) *config {
		c.recorder = r
		return c
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *config) *config {
		c.logger = l
		return c
	}
}

// WithFirstLoadLimit sets how many entries are displayed when a scope is shown first.
func WithFirstLoadLimit(n int) Option {
	return func(c *config) *config {
		c.firstLoadLimit = n
		return c
	}
}

func New(store *settings.Store, fetcher fetch.Fetcher, options ...Option) *View {
	c := &config{firstLoadLimit: grouping.DefaultFirstLoadLimit}
	for _, opt := range options {
		c = opt(c)
	}
	if c.sched == nil {
		c.sched = scheduler.New()
	}
	if c.recorder == nil {
		c.recorder = metrics.Noop()
	}
	if c.logger == nil {
		c.logger = log.New("view")
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		store:          store,
		fetcher:        fetcher,
		sched:          c.sched,
		recorder:       c.recorder,
		logger:         c.logger,
		firstLoadLimit: c.firstLoadLimit,
		result:         grouping.Result{},
		ctx:            ctx,
		cancel:         cancel,
	}
	autoOptions := append([]autorefresh.Option{autorefresh.WithContext(ctx)}, c.autoOptions...)
	v.auto = autorefresh.New(v.refresh, autoOptions...)
	return v
}

// Open switches the view to the scope and fetches its scalars.
//
// Caches, pending smoothing and pending auto-refresh of the previous scope are dropped.
// A fetch failure is returned, and the view stays open with no catalog.
func (v *View) Open(ctx context.Context, scope settings.Scope) error {
	v.mux.Lock()
	v.generation += 1
	v.scope = scope
	v.opened = true
	v.catalog = nil
	v.smoothed = nil
	v.result = grouping.Result{}
	v.charts = nil
	v.lastErr = nil
	v.sched.Reset()
	v.auto.Stop()
	gen := v.generation
	v.mux.Unlock()
	v.logger.Infof("opening %+v", scope)

	if err := v.store.Hydrate(ctx, scope); err != nil {
		v.logger.Warnf("settings of %+v are not loaded. defaults are used: %+v", scope, err)
	}

	eff := v.store.Resolve(scope)
	return v.fetchAndInstall(ctx, gen, scope, eff.XAxisType, false)
}

// Scope returns the opened scope.
func (v *View) Scope() (settings.Scope, bool) {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.scope, v.opened
}

// Close stops timers of the view. The view cannot be reopened.
func (v *View) Close() {
	v.cancel()
	v.auto.Stop()

	v.mux.Lock()
	defer v.mux.Unlock()
	v.generation += 1
	v.opened = false
	v.sched.Reset()
}

// Refresh fetches scalars of the scope again.
//
// A manual refresh happens at once, and cancels pending automatic one.
func (v *View) Refresh(ctx context.Context, manual bool) error {
	if manual {
		return v.auto.Manual(ctx)
	}
	return v.refresh(ctx, false)
}

// Tick is called by the shared timer. It may schedule an automatic refresh.
func (v *View) Tick() bool {
	if _, opened := v.Scope(); !opened {
		return false
	}
	return v.auto.Tick()
}

// RefreshPending reports an automatic refresh is waiting for its quiet period.
func (v *View) RefreshPending() bool {
	return v.auto.Pending()
}

// Overridden reports the opened experiment has its own settings, apart from its project.
func (v *View) Overridden() bool {
	v.mux.Lock()
	defer v.mux.Unlock()
	if !v.opened || v.scope.ProjectLevel() {
		return false
	}
	_, ok := v.store.Lookup(v.scope.Key())
	return ok
}

func (v *View) Flags() autorefresh.Flags {
	return v.auto.Flags()
}

func (v *View) SetFlags(f autorefresh.Flags) {
	v.auto.SetFlags(f)
}

func (v *View) refresh(ctx context.Context, manual bool) error {
	v.mux.Lock()
	if !v.opened {
		v.mux.Unlock()
		return ErrNotOpened
	}
	gen, scope := v.generation, v.scope
	v.mux.Unlock()

	v.recorder.Refresh(manual)
	eff := v.store.Resolve(scope)
	return v.fetchAndInstall(ctx, gen, scope, eff.XAxisType, true)
}

// fetchAndInstall fetches scalars without lock, then installs them if the scope is not switched meanwhile.
func (v *View) fetchAndInstall(ctx context.Context, gen uint64, scope settings.Scope, xAxisType axis.XAxisType, refresh bool) error {
	for {
		catalog, err := v.fetcher.FetchScalars(ctx, scope, xAxisType, refresh)

		v.mux.Lock()
		if v.generation != gen {
			v.mux.Unlock()
			v.logger.Debugf("discarding scalars fetched for %+v: scope has been switched", scope)
			return nil
		}
		if err != nil {
			v.logger.Errorf("failed to fetch scalars of %+v: %+v", scope, err)
			// the last catalog is kept.
			v.lastErr = err
			v.mux.Unlock()
			return xe.Wrap(err)
		}
		v.lastErr = nil
		v.catalog = catalog
		next, again := v.recompute()
		v.mux.Unlock()

		if !again {
			return nil
		}
		xAxisType, refresh = next, true
	}
}

// recompute should be called with v.mux locked.
//
// It returns the x-axis type to be refetched for, if the catalog does not fit the settings.
func (v *View) recompute() (axis.XAxisType, bool) {
	eff := v.store.Resolve(v.scope)
	d := v.sched.Evaluate(v.catalog, eff)
	v.logger.Debugf("recompute %+v: %s", v.scope, d.Action)

	switch d.Action {
	case scheduler.Defer:
		v.recorder.Recompute(metrics.KindDefer)
		if d.Refetch {
			v.logger.Infof("scalars of %+v do not fit x-axis type %s. refetching", v.scope, d.RefetchAxis)
			v.recorder.Refetch(string(d.RefetchAxis))
			return d.RefetchAxis, true
		}
	case scheduler.Full:
		v.recorder.Recompute(metrics.KindFull)
		begin := time.Now()
		v.smoothAll(eff)
		v.regroup(eff, d.FirstTime)
		v.recorder.FullRecompute(time.Since(begin))
	case scheduler.Regroup:
		v.recorder.Recompute(metrics.KindRegroup)
		v.regroup(eff, d.FirstTime)
	default:
		v.recorder.Recompute(metrics.KindSkip)
	}
	return "", false
}

func (v *View) smoothAll(eff settings.Settings) {
	params := eff.SmoothingParams()
	v.smoothed = map[scalar.Pair][]scalar.Point{}
	for _, p := range v.catalog.Pairs() {
		s, _ := v.catalog.Series(p.Metric, p.Variant)
		v.smoothed[p] = smoothing.SmoothPoints(s.Points, eff.SmoothType, params)
	}
}

func (v *View) regroup(eff settings.Settings, firstTime bool) {
	res := grouping.Do(grouping.Input{
		Catalog:        v.catalog,
		Hidden:         eff.HiddenMetricsScalar,
		Mode:           eff.GroupBy,
		FirstTime:      firstTime,
		ProjectLevel:   eff.ProjectLevel,
		FirstLoadLimit: v.firstLoadLimit,
	})
	if res.AutoHidden != nil && !v.catalog.Empty() {
		eff = v.store.Set(v.scope, settings.Record{HiddenMetricsScalar: res.AutoHidden})
		v.sched.Remember(eff.HiddenMetricsScalar)
	}
	v.result = res
	v.charts = v.chartsOf(res, eff)
}

func (v *View) chartsOf(res grouping.Result, eff settings.Settings) []Chart {
	charts := make([]Chart, 0, len(res.Groups))
	for _, g := range res.Groups {
		c := Chart{Name: g.Name, Token: g.Token, Metric: g.Metric, Summary: g.Summary}
		if g.Summary {
			c.Values = v.catalog.SingleValues()
			charts = append(charts, c)
			continue
		}
		for _, variant := range g.Variants {
			p := scalar.Pair{Metric: g.Metric, Variant: variant}
			line := Line{Variant: variant, Points: v.smoothed[p]}
			if eff.ShowOriginals {
				s, _ := v.catalog.Series(p.Metric, p.Variant)
				line.Original = s.Points
			}
			c.Lines = append(c.Lines, line)
		}
		charts = append(charts, c)
	}
	return charts
}

// EffectiveSettings of the opened scope.
func (v *View) EffectiveSettings() (settings.Settings, error) {
	v.mux.Lock()
	defer v.mux.Unlock()
	if !v.opened {
		return settings.Settings{}, ErrNotOpened
	}
	return v.store.Resolve(v.scope), nil
}

// ChartGroups returns charts computed last.
func (v *View) ChartGroups() []Chart {
	v.mux.Lock()
	defer v.mux.Unlock()
	return append([]Chart{}, v.charts...)
}

// DisplayList returns tokens of charts computed last, in order.
func (v *View) DisplayList() []string {
	v.mux.Lock()
	defer v.mux.Unlock()
	return append([]string{}, v.result.DisplayList...)
}

// Display returns the display list with every selectable option.
func (v *View) Display() Display {
	v.mux.Lock()
	defer v.mux.Unlock()
	return Display{
		DisplayList: append([]string{}, v.result.DisplayList...),
		Options:     append([]grouping.Option{}, v.result.Options...),
	}
}

// LastError returns the error of the last fetch, if it failed.
func (v *View) LastError() error {
	v.mux.Lock()
	defer v.mux.Unlock()
	return v.lastErr
}

// update settings of the scope and recompute. A refetch is done if the catalog no longer fits.
func (v *View) update(ctx context.Context, changes func(settings.Settings) settings.Record) (settings.Settings, error) {
	v.mux.Lock()
	if !v.opened {
		v.mux.Unlock()
		return settings.Settings{}, ErrNotOpened
	}
	scope, gen := v.scope, v.generation
	eff := v.store.Set(scope, changes(v.store.Resolve(scope)))
	next, again := v.recompute()
	v.mux.Unlock()

	if again {
		if err := v.fetchAndInstall(ctx, gen, scope, next, true); err != nil {
			return eff, err
		}
	}
	return eff, nil
}

// ToggleHidden hides the token if it is displayed, or displays it otherwise.
func (v *View) ToggleHidden(ctx context.Context, token string) (settings.Settings, error) {
	return v.update(ctx, func(eff settings.Settings) settings.Record {
		return settings.Record{HiddenMetricsScalar: eff.HiddenMetricsScalar.Toggle(token)}
	})
}

// SetHidden replaces the hidden list.
func (v *View) SetHidden(ctx context.Context, tokens []string) (settings.Settings, error) {
	return v.update(ctx, func(settings.Settings) settings.Record {
		return settings.Record{HiddenMetricsScalar: scalar.NewHiddenList(tokens...)}
	})
}

func (v *View) SetGroupBy(ctx context.Context, mode grouping.Mode) (settings.Settings, error) {
	return v.update(ctx, func(settings.Settings) settings.Record {
		return settings.Record{GroupBy: &mode}
	})
}

// SetAxisType changes the x-axis type. Scalars are fetched again when the current ones do not fit.
func (v *View) SetAxisType(ctx context.Context, t axis.XAxisType) (settings.Settings, error) {
	return v.update(ctx, func(settings.Settings) settings.Record {
		return settings.Record{XAxisType: &t}
	})
}

func (v *View) SetShowOriginals(ctx context.Context, show bool) (settings.Settings, error) {
	return v.update(ctx, func(settings.Settings) settings.Record {
		return settings.Record{ShowOriginals: &show}
	})
}

// SetSmoothing changes smoothing. Nil weight or sigma are left as they are.
//
// Settings are updated at once, and charts are recomputed after a quiet period.
func (v *View) SetSmoothing(typ smoothing.Type, weight *float64, sigma *float64) (settings.Settings, error) {
	v.mux.Lock()
	defer v.mux.Unlock()
	if !v.opened {
		return settings.Settings{}, ErrNotOpened
	}

	eff := v.store.Set(v.scope, settings.Record{SmoothType: &typ, SmoothWeight: weight, SmoothSigma: sigma})

	gen := v.generation
	v.sched.SmoothingChanged(func() {
		v.mux.Lock()
		defer v.mux.Unlock()
		if v.generation != gen {
			return
		}
		// smoothing does not change the x-axis. A catalog not fitting it has
		// had its refetch requested by whoever changed the axis, and the
		// scheduler requests one at most once per axis.
		_, _ = v.recompute()
	})
	return eff, nil
}

// PromoteToProject makes the effective settings of the experiment the project default.
func (v *View) PromoteToProject(ctx context.Context) (settings.Settings, error) {
	v.mux.Lock()
	if !v.opened {
		v.mux.Unlock()
		return settings.Settings{}, ErrNotOpened
	}
	eff, err := v.store.Promote(v.scope)
	if err != nil {
		v.mux.Unlock()
		return settings.Settings{}, err
	}
	v.mux.Unlock()
	return eff, nil
}

// ResetToProject drops settings of the experiment, and follows the project default.
func (v *View) ResetToProject(ctx context.Context) (settings.Settings, error) {
	v.mux.Lock()
	if !v.opened {
		v.mux.Unlock()
		return settings.Settings{}, ErrNotOpened
	}
	scope, gen := v.scope, v.generation
	eff := v.store.Reset(scope)
	next, again := v.recompute()
	v.mux.Unlock()

	if again {
		if err := v.fetchAndInstall(ctx, gen, scope, next, true); err != nil {
			return eff, err
		}
	}
	return eff, nil
}
