package engine_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/opst/scalarboard/pkg/autorefresh"
	"github.com/opst/scalarboard/pkg/axis"
	"github.com/opst/scalarboard/pkg/db"
	"github.com/opst/scalarboard/pkg/engine"
	"github.com/opst/scalarboard/pkg/grouping"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/scheduler"
	"github.com/opst/scalarboard/pkg/settings"
	"github.com/opst/scalarboard/pkg/smoothing"
	"github.com/opst/scalarboard/pkg/utils/cmp"
	"github.com/opst/scalarboard/pkg/utils/debounce"
	"github.com/opst/scalarboard/pkg/utils/debounce/mock"
	"github.com/opst/scalarboard/pkg/utils/try"
)

var (
	e1      = settings.Scope{Experiment: "e1", Project: "p1"}
	e2      = settings.Scope{Experiment: "e2", Project: "p1"}
	project = settings.Scope{Project: "p1"}
)

type call struct {
	scope   settings.Scope
	axis    axis.XAxisType
	refresh bool
}

type FakeFetcher struct {
	mux     sync.Mutex
	calls   []call
	respond func(call) (*scalar.Catalog, error)
}

func (f *FakeFetcher) FetchScalars(_ context.Context, scope settings.Scope, xAxisType axis.XAxisType, refresh bool) (*scalar.Catalog, error) {
	c := call{scope: scope, axis: xAxisType, refresh: refresh}
	f.mux.Lock()
	f.calls = append(f.calls, c)
	f.mux.Unlock()
	return f.respond(c)
}

func (f *FakeFetcher) Calls() []call {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([]call{}, f.calls...)
}

func always(c *scalar.Catalog) *FakeFetcher {
	return &FakeFetcher{
		respond: func(call) (*scalar.Catalog, error) { return c, nil },
	}
}

type FakeRecorder struct {
	mux       sync.Mutex
	kinds     []string
	refetches []string
	refreshes []bool
}

func (r *FakeRecorder) Recompute(kind string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.kinds = append(r.kinds, kind)
}

func (r *FakeRecorder) FullRecompute(time.Duration) {}

func (r *FakeRecorder) Refetch(xAxisType string) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.refetches = append(r.refetches, xAxisType)
}

func (r *FakeRecorder) Refresh(manual bool) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.refreshes = append(r.refreshes, manual)
}

type harness struct {
	view     *engine.View
	store    *settings.Store
	timers   *mock.Timers
	auto     *mock.Timers
	recorder *FakeRecorder
}

func newHarness(t *testing.T, fetcher *FakeFetcher, options ...engine.Option) harness {
	t.Helper()
	h := harness{
		store:    settings.NewStore(),
		timers:   mock.New(),
		auto:     mock.New(),
		recorder: &FakeRecorder{},
	}
	options = append([]engine.Option{
		engine.WithScheduler(scheduler.New(scheduler.WithSmoothingDebouncer(
			debounce.New(scheduler.DefaultSmoothingDebounce, debounce.WithAfterFunc(h.timers.AfterFunc)),
		))),
		engine.WithAutoRefresh(autorefresh.WithDebouncer(
			debounce.New(autorefresh.DefaultAutoDebounce, debounce.WithAfterFunc(h.auto.AfterFunc)),
		)),
		engine.WithRecorder(h.recorder),
	}, options...)
	h.view = engine.New(h.store, fetcher, options...)
	t.Cleanup(h.view.Close)
	return h
}

func iterations(ys ...float64) []scalar.Point {
	points := make([]scalar.Point, len(ys))
	for i, y := range ys {
		points[i] = scalar.Point{X: float64(i), Y: y}
	}
	return points
}

func timestamps(ys ...float64) []scalar.Point {
	points := make([]scalar.Point, len(ys))
	for i, y := range ys {
		points[i] = scalar.Point{X: 1.7e12 + float64(i)*1000, Y: y}
	}
	return points
}

func lossCatalog() *scalar.Catalog {
	return scalar.FromMap(map[string]map[string][]scalar.Point{
		"loss": {
			"train": iterations(1, 2, 3, 4, 5),
			"val":   iterations(5, 4, 3, 2, 1),
		},
	})
}

func ys(points []scalar.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Y
	}
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestOpen(t *testing.T) {
	type When struct {
		catalog *scalar.Catalog
		hidden  []string
		mode    grouping.Mode
	}
	type Then struct {
		displayList []string
		names       []string
	}

	for name, testcase := range map[string]struct {
		when When
		then Then
	}{
		"metrics with multiple variants are grouped by metric": {
			when: When{catalog: lossCatalog(), mode: grouping.ByMetric},
			then: Then{displayList: []string{"loss"}, names: []string{"loss"}},
		},
		"a hidden metric is not displayed": {
			when: When{catalog: lossCatalog(), hidden: []string{"loss"}, mode: grouping.ByMetric},
			then: Then{displayList: []string{}, names: []string{}},
		},
		"without grouping, a pair can be hidden": {
			when: When{catalog: lossCatalog(), hidden: []string{"losstrain"}, mode: grouping.None},
			then: Then{displayList: []string{"lossval"}, names: []string{"lossval"}},
		},
		"single values come first as summary": {
			when: When{
				catalog: try.To(
					scalar.NewBuilder().
						Add("acc", "test", iterations(0.5, 0.7)).
						AddSingleValue("best", 0.9).
						Build(),
				).OrFatal(t),
				mode: grouping.ByMetric,
			},
			then: Then{
				displayList: []string{scalar.SummaryMetric, "acc"},
				names:       []string{scalar.SummaryMetric, "acc - test"},
			},
		},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, always(testcase.when.catalog))
			changes := settings.Record{GroupBy: &testcase.when.mode}
			if testcase.when.hidden != nil {
				changes.HiddenMetricsScalar = scalar.NewHiddenList(testcase.when.hidden...)
			}
			h.store.Set(e1, changes)

			if err := h.view.Open(context.Background(), e1); err != nil {
				t.Fatal(err)
			}

			if actual := h.view.DisplayList(); !cmp.SliceEq(actual, testcase.then.displayList) {
				t.Errorf("unexpected display list: %v", actual)
			}
			names := []string{}
			for _, c := range h.view.ChartGroups() {
				names = append(names, c.Name)
			}
			if !cmp.SliceEq(names, testcase.then.names) {
				t.Errorf("unexpected charts: %v", names)
			}
		})
	}

	t.Run("each variant is a line of the chart of its metric", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		if err := h.view.Open(context.Background(), e1); err != nil {
			t.Fatal(err)
		}

		charts := h.view.ChartGroups()
		if len(charts) != 1 {
			t.Fatalf("unexpected charts: %+v", charts)
		}
		lines := charts[0].Lines
		if len(lines) != 2 || lines[0].Variant != "train" || lines[1].Variant != "val" {
			t.Fatalf("unexpected lines: %+v", lines)
		}
		if !cmp.SliceEq(ys(lines[0].Points), []float64{1, 2, 3, 4, 5}) {
			t.Errorf("unexpected points: %v", lines[0].Points)
		}
		if lines[0].Original != nil {
			t.Errorf("originals should not be shown: %v", lines[0].Original)
		}
	})

	t.Run("a fetch issued before switching scope is discarded", func(t *testing.T) {
		started := make(chan struct{})
		release := make(chan struct{})
		fetcher := &FakeFetcher{
			respond: func(c call) (*scalar.Catalog, error) {
				if c.scope == e1 {
					close(started)
					<-release
					return lossCatalog(), nil
				}
				return scalar.FromMap(map[string]map[string][]scalar.Point{
					"acc": {"test": iterations(0.1, 0.2)},
				}), nil
			},
		}
		h := newHarness(t, fetcher)

		done := make(chan error, 1)
		go func() {
			done <- h.view.Open(context.Background(), e1)
		}()
		<-started

		if err := h.view.Open(context.Background(), e2); err != nil {
			t.Fatal(err)
		}
		close(release)
		if err := <-done; err != nil {
			t.Fatal(err)
		}

		if scope, _ := h.view.Scope(); scope != e2 {
			t.Errorf("unexpected scope: %+v", scope)
		}
		if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"acc"}) {
			t.Errorf("unexpected display list: %v", actual)
		}
	})

	t.Run("operations need a scope", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		if _, err := h.view.SetHidden(context.Background(), []string{"loss"}); !errors.Is(err, engine.ErrNotOpened) {
			t.Errorf("unexpected error: %v", err)
		}
		if _, err := h.view.EffectiveSettings(); !errors.Is(err, engine.ErrNotOpened) {
			t.Errorf("unexpected error: %v", err)
		}
		if h.view.Tick() {
			t.Error("tick should not schedule refresh")
		}
	})
}

func TestFirstLoad(t *testing.T) {
	many := func() *scalar.Catalog {
		b := scalar.NewBuilder()
		for i := 0; i < 25; i++ {
			b.Add(fmt.Sprintf("m%02d", i), "v", iterations(float64(i)))
		}
		return try.To(b.Build()).OrFatal(t)
	}

	t.Run("only first entries are displayed, and the rest are written as hidden", func(t *testing.T) {
		h := newHarness(t, always(many()))
		if err := h.view.Open(context.Background(), e1); err != nil {
			t.Fatal(err)
		}

		displayed := h.view.DisplayList()
		if len(displayed) != grouping.DefaultFirstLoadLimit || displayed[0] != "m00" || displayed[19] != "m19" {
			t.Errorf("unexpected display list: %v", displayed)
		}

		record, ok := h.store.Lookup(db.ExperimentKey("e1"))
		if !ok {
			t.Fatal("hidden list is not written")
		}
		expected := scalar.NewHiddenList("m20", "m21", "m22", "m23", "m24")
		if !record.HiddenMetricsScalar.Equal(expected) {
			t.Errorf("unexpected hidden list: %v", record.HiddenMetricsScalar)
		}

		if _, err := h.view.ToggleHidden(context.Background(), "m24"); err != nil {
			t.Fatal(err)
		}
		if displayed := h.view.DisplayList(); len(displayed) != 21 || displayed[20] != "m24" {
			t.Errorf("unexpected display list: %v", displayed)
		}
	})

	t.Run("the limit is configurable", func(t *testing.T) {
		h := newHarness(t, always(many()), engine.WithFirstLoadLimit(3))
		if err := h.view.Open(context.Background(), e1); err != nil {
			t.Fatal(err)
		}
		if displayed := h.view.DisplayList(); !cmp.SliceEq(displayed, []string{"m00", "m01", "m02"}) {
			t.Errorf("unexpected display list: %v", displayed)
		}
	})

	t.Run("project-level settings are not capped", func(t *testing.T) {
		h := newHarness(t, always(many()))
		if err := h.view.Open(context.Background(), project); err != nil {
			t.Fatal(err)
		}
		if displayed := h.view.DisplayList(); len(displayed) != 25 {
			t.Errorf("unexpected display list: %v", displayed)
		}
	})

	t.Run("an established hidden list is respected", func(t *testing.T) {
		h := newHarness(t, always(many()))
		h.store.Set(e1, settings.Record{HiddenMetricsScalar: scalar.NewHiddenList("m00")})
		if err := h.view.Open(context.Background(), e1); err != nil {
			t.Fatal(err)
		}
		if displayed := h.view.DisplayList(); len(displayed) != 24 || displayed[0] != "m01" {
			t.Errorf("unexpected display list: %v", displayed)
		}
	})
}

func TestRecompute(t *testing.T) {
	t.Run("hiding regroups without smoothing again", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}
		if _, err := h.view.SetGroupBy(ctx, grouping.None); err != nil {
			t.Fatal(err)
		}
		eff, err := h.view.ToggleHidden(ctx, "losstrain")
		if err != nil {
			t.Fatal(err)
		}
		if !eff.HiddenMetricsScalar.Equal(scalar.NewHiddenList("losstrain")) {
			t.Errorf("unexpected hidden list: %v", eff.HiddenMetricsScalar)
		}
		// nothing changed.
		if _, err := h.view.SetHidden(ctx, []string{"losstrain"}); err != nil {
			t.Fatal(err)
		}

		expected := []string{"full", "full", "regroup", "skip"}
		if !cmp.SliceEq(h.recorder.kinds, expected) {
			t.Errorf("unexpected recomputations: %v", h.recorder.kinds)
		}
		if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"lossval"}) {
			t.Errorf("unexpected display list: %v", actual)
		}

		d := h.view.Display()
		if len(d.Options) != 2 || !d.Options[0].Hidden || d.Options[1].Hidden {
			t.Errorf("unexpected options: %+v", d.Options)
		}
	})

	t.Run("smoothing is applied after the quiet period", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		if err := h.view.Open(context.Background(), e1); err != nil {
			t.Fatal(err)
		}

		for _, w := range []float64{0.1, 0.2, 0.4} {
			eff, err := h.view.SetSmoothing(smoothing.MovingAverage, settings.Ptr(w), nil)
			if err != nil {
				t.Fatal(err)
			}
			if eff.SmoothType != smoothing.MovingAverage || eff.SmoothWeight != w {
				t.Errorf("settings should be updated at once: %+v", eff)
			}
		}

		if train := h.view.ChartGroups()[0].Lines[0]; !cmp.SliceEq(ys(train.Points), []float64{1, 2, 3, 4, 5}) {
			t.Errorf("charts should not be changed yet: %v", train.Points)
		}

		live := h.timers.Live()
		if len(live) != 1 || live[0].Wait != scheduler.DefaultSmoothingDebounce {
			t.Fatalf("unexpected timers: %+v", live)
		}
		h.timers.FireAll()

		train := h.view.ChartGroups()[0].Lines[0]
		if !cmp.SliceEqWith(ys(train.Points), []float64{1.5, 2, 3, 4, 4.5}, approx) {
			t.Errorf("unexpected smoothed points: %v", train.Points)
		}
	})

	t.Run("pending smoothing is dropped when scope is switched", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}
		if _, err := h.view.SetSmoothing(smoothing.Exponential, settings.Ptr(0.5), nil); err != nil {
			t.Fatal(err)
		}
		if err := h.view.Open(ctx, e2); err != nil {
			t.Fatal(err)
		}
		if live := h.timers.Live(); len(live) != 0 {
			t.Errorf("smoothing is still pending: %+v", live)
		}
	})

	t.Run("originals are shown on demand", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}
		h.view.SetSmoothing(smoothing.Exponential, settings.Ptr(0.5), nil)
		h.timers.FireAll()
		if _, err := h.view.SetShowOriginals(ctx, true); err != nil {
			t.Fatal(err)
		}

		train := h.view.ChartGroups()[0].Lines[0]
		if !cmp.SliceEq(ys(train.Original), []float64{1, 2, 3, 4, 5}) {
			t.Errorf("unexpected originals: %v", train.Original)
		}
		if !cmp.SliceEqWith(ys(train.Points)[:3], []float64{1, 1.5, 2.25}, approx) {
			t.Errorf("unexpected smoothed points: %v", train.Points)
		}
	})
}

func TestAxis(t *testing.T) {
	t.Run("changing x-axis type refetches, and recomputes with the new catalog", func(t *testing.T) {
		fetcher := &FakeFetcher{
			respond: func(c call) (*scalar.Catalog, error) {
				if c.axis.WallClock() {
					return scalar.FromMap(map[string]map[string][]scalar.Point{
						"loss": {"train": timestamps(1, 2)},
					}), nil
				}
				return lossCatalog(), nil
			},
		}
		h := newHarness(t, fetcher)
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}

		eff, err := h.view.SetAxisType(ctx, axis.Timestamp)
		if err != nil {
			t.Fatal(err)
		}
		if eff.XAxisType != axis.Timestamp {
			t.Errorf("unexpected settings: %+v", eff)
		}

		expected := []call{
			{scope: e1, axis: axis.Iteration, refresh: false},
			{scope: e1, axis: axis.Timestamp, refresh: true},
		}
		if actual := fetcher.Calls(); !cmp.SliceEq(actual, expected) {
			t.Errorf("unexpected fetches: %+v", actual)
		}
		if !cmp.SliceEq(h.recorder.kinds, []string{"full", "defer", "full"}) {
			t.Errorf("unexpected recomputations: %v", h.recorder.kinds)
		}
		if !cmp.SliceEq(h.recorder.refetches, []string{"timestamp"}) {
			t.Errorf("unexpected refetches: %v", h.recorder.refetches)
		}
		if names := h.view.ChartGroups(); len(names) != 1 || names[0].Name != "loss - train" {
			t.Errorf("unexpected charts: %+v", names)
		}
	})

	t.Run("a refetch is requested once while the catalog does not fit", func(t *testing.T) {
		fetcher := always(lossCatalog())
		h := newHarness(t, fetcher)
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}
		if _, err := h.view.SetAxisType(ctx, axis.Timestamp); err != nil {
			t.Fatal(err)
		}
		if calls := fetcher.Calls(); len(calls) != 2 {
			t.Errorf("unexpected fetches: %+v", calls)
		}
		if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"loss"}) {
			t.Errorf("charts of the last recomputation should be kept: %v", actual)
		}

		if _, err := h.view.SetSmoothing(smoothing.Gaussian, nil, settings.Ptr(1.0)); err != nil {
			t.Fatal(err)
		}
		h.timers.FireAll()
		if calls := fetcher.Calls(); len(calls) != 2 {
			t.Errorf("smoothing should not fetch again: %+v", calls)
		}
		if kinds := h.recorder.kinds; kinds[len(kinds)-1] != "defer" {
			t.Errorf("unexpected recomputations: %v", kinds)
		}
		if !cmp.SliceEq(h.recorder.refetches, []string{"timestamp"}) {
			t.Errorf("unexpected refetches: %v", h.recorder.refetches)
		}
	})
}

func TestRefresh(t *testing.T) {
	errBroken := errors.New("broken")

	t.Run("a failed fetch keeps the last catalog", func(t *testing.T) {
		fetcher := &FakeFetcher{
			respond: func(c call) (*scalar.Catalog, error) {
				if c.refresh {
					return nil, errBroken
				}
				return lossCatalog(), nil
			},
		}
		h := newHarness(t, fetcher)
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}

		if err := h.view.Refresh(ctx, true); !errors.Is(err, errBroken) {
			t.Errorf("unexpected error: %v", err)
		}
		if !errors.Is(h.view.LastError(), errBroken) {
			t.Errorf("unexpected last error: %v", h.view.LastError())
		}
		if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"loss"}) {
			t.Errorf("unexpected display list: %v", actual)
		}
		if !cmp.SliceEq(h.recorder.refreshes, []bool{true}) {
			t.Errorf("unexpected refreshes: %v", h.recorder.refreshes)
		}
	})

	t.Run("ticks refresh automatically when flags allow", func(t *testing.T) {
		fetcher := always(lossCatalog())
		h := newHarness(t, fetcher)
		if err := h.view.Open(context.Background(), e1); err != nil {
			t.Fatal(err)
		}

		if h.view.Tick() {
			t.Error("auto refresh is off by default")
		}
		h.view.SetFlags(autorefresh.Flags{AutoRefresh: true})
		if !h.view.Tick() {
			t.Error("auto refresh should be scheduled")
		}
		if !h.view.RefreshPending() {
			t.Error("auto refresh should be pending")
		}
		h.auto.FireAll()
		if h.view.RefreshPending() {
			t.Error("auto refresh should be done")
		}

		calls := fetcher.Calls()
		if len(calls) != 2 || !calls[1].refresh {
			t.Errorf("unexpected fetches: %+v", calls)
		}
		if !cmp.SliceEq(h.recorder.refreshes, []bool{false}) {
			t.Errorf("unexpected refreshes: %v", h.recorder.refreshes)
		}
		// the same catalog again.
		if kinds := h.recorder.kinds; kinds[len(kinds)-1] != "skip" {
			t.Errorf("unexpected recomputations: %v", kinds)
		}
	})

	t.Run("a closed view does not refresh", func(t *testing.T) {
		h := newHarness(t, always(lossCatalog()))
		ctx := context.Background()
		if err := h.view.Open(ctx, e1); err != nil {
			t.Fatal(err)
		}
		h.view.Close()
		if err := h.view.Refresh(ctx, true); !errors.Is(err, engine.ErrNotOpened) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestPromoteAndReset(t *testing.T) {
	h := newHarness(t, always(lossCatalog()))
	ctx := context.Background()
	if err := h.view.Open(ctx, e1); err != nil {
		t.Fatal(err)
	}
	if _, err := h.view.SetGroupBy(ctx, grouping.None); err != nil {
		t.Fatal(err)
	}

	eff, err := h.view.PromoteToProject(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !eff.ProjectLevel || eff.GroupBy != grouping.None {
		t.Errorf("unexpected settings: %+v", eff)
	}

	if err := h.view.Open(ctx, e2); err != nil {
		t.Fatal(err)
	}
	if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"losstrain", "lossval"}) {
		t.Errorf("project default is not applied: %v", actual)
	}
	if h.view.Overridden() {
		t.Error("e2 should follow the project default")
	}

	if _, err := h.view.SetGroupBy(ctx, grouping.ByMetric); err != nil {
		t.Fatal(err)
	}
	if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"loss"}) {
		t.Errorf("unexpected display list: %v", actual)
	}
	if !h.view.Overridden() {
		t.Error("e2 should have its own settings")
	}

	eff, err = h.view.ResetToProject(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !eff.ProjectLevel || eff.GroupBy != grouping.None {
		t.Errorf("unexpected settings: %+v", eff)
	}
	if _, ok := h.store.Lookup(db.ExperimentKey("e2")); ok || h.view.Overridden() {
		t.Error("experiment-level record should be removed")
	}
	if actual := h.view.DisplayList(); !cmp.SliceEq(actual, []string{"losstrain", "lossval"}) {
		t.Errorf("unexpected display list: %v", actual)
	}
}
