// Package autorefresh turns ticks of a shared timer into data refresh requests.
//
// A tick requests a refresh only when auto-refresh is on, the scope is not being
// edited and the view is not minimized. Refreshes from ticks are debounced.
// Manual refreshes are not.
package autorefresh

import (
	"context"
	"sync"
	"time"

	"github.com/opst/scalarboard/pkg/utils/debounce"
)

// DefaultAutoDebounce is the quiet period of automatic refreshes.
const DefaultAutoDebounce = 5 * time.Second

// Flags owned by the host.
type Flags struct {
	AutoRefresh bool `json:"auto_refresh"`
	EditMode    bool `json:"edit_mode"`
	Minimized   bool `json:"minimized"`
}

// Allows tells whether automatic refresh may happen.
func (f Flags) Allows() bool {
	return f.AutoRefresh && !f.EditMode && !f.Minimized
}

// Refresher requests a data refresh. manual is false for automatic refreshes.
type Refresher func(ctx context.Context, manual bool) error

type Controller struct {
	mux     sync.Mutex
	flags   Flags
	auto    *debounce.Debouncer
	refresh Refresher

	// ctx is passed to automatic refreshes.
	ctx context.Context
}

type Option func(*Controller) *Controller

func WithDebouncer(d *debounce.Debouncer) Option {
	return func(c *Controller) *Controller {
		c.auto = d
		return c
	}
}

// WithContext sets the context for automatic refreshes. Refreshes stop when it is done.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) *Controller {
		c.ctx = ctx
		return c
	}
}

func WithFlags(f Flags) Option {
	return func(c *Controller) *Controller {
		c.flags = f
		return c
	}
}

func New(refresh Refresher, options ...Option) *Controller {
	c := &Controller{
		auto:    debounce.New(DefaultAutoDebounce),
		refresh: refresh,
		ctx:     context.Background(),
	}
	for _, opt := range options {
		c = opt(c)
	}
	return c
}

func (c *Controller) Flags() Flags {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.flags
}

// SetFlags replaces flags. When they do not allow auto-refresh, a pending one is cancelled.
func (c *Controller) SetFlags(f Flags) {
	c.mux.Lock()
	c.flags = f
	c.mux.Unlock()

	if !f.Allows() {
		c.auto.Cancel()
	}
}

// Tick is called on each tick of the shared timer.
//
// It returns true if an automatic refresh is scheduled.
func (c *Controller) Tick() bool {
	if !c.Flags().Allows() {
		return false
	}
	c.auto.Trigger(func() {
		// flags may have been changed during the quiet period.
		if c.ctx.Err() != nil || !c.Flags().Allows() {
			return
		}
		// errors are for the refresher to report.
		c.refresh(c.ctx, false)
	})
	return true
}

// Manual refreshes at once. A pending automatic refresh is cancelled.
//
// Manual refreshes happen regardless of flags.
func (c *Controller) Manual(ctx context.Context) error {
	c.auto.Cancel()
	return c.refresh(ctx, true)
}

// Pending reports an automatic refresh is scheduled.
func (c *Controller) Pending() bool {
	return c.auto.Pending()
}

// Stop cancels a pending automatic refresh.
func (c *Controller) Stop() {
	c.auto.Cancel()
}
