// Package fetch is the interface to the backend serving scalar metrics.
package fetch

import (
	"context"
	"errors"

	"github.com/opst/scalarboard/pkg/axis"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/settings"
)

// ErrFetch is wrapped by errors of fetching scalars.
var ErrFetch = errors.New("failed to fetch scalars")

type Fetcher interface {
	// FetchScalars fetches every scalar series of the scope, with x values for xAxisType.
	//
	// refresh is true when the data is fetched again for an already shown scope.
	//
	// # Returns
	//
	// - *scalar.Catalog: the whole snapshot. It is never partial.
	//
	// - error: wraps ErrFetch.
	FetchScalars(ctx context.Context, scope settings.Scope, xAxisType axis.XAxisType, refresh bool) (*scalar.Catalog, error)
}

// FetcherFunc adapts a function into Fetcher.
type FetcherFunc func(ctx context.Context, scope settings.Scope, xAxisType axis.XAxisType, refresh bool) (*scalar.Catalog, error)

func (f FetcherFunc) FetchScalars(ctx context.Context, scope settings.Scope, xAxisType axis.XAxisType, refresh bool) (*scalar.Catalog, error) {
	return f(ctx, scope, xAxisType, refresh)
}
