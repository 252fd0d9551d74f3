// Package rest fetches scalar metrics from the tracking backend over HTTP.
//
//	GET {api_root}/scalars?experiment={id}&project={id}&x_axis={type}[&refresh]
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apierr "github.com/opst/scalarboard/pkg/api/types/errors"
	"github.com/opst/scalarboard/pkg/api/types/scalars"
	"github.com/opst/scalarboard/pkg/axis"
	xe "github.com/opst/scalarboard/pkg/errors"
	"github.com/opst/scalarboard/pkg/fetch"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/settings"
)

type client struct {
	httpclient *http.Client
	api        string
}

var _ fetch.Fetcher = &client{}

type Option func(*client) *client

// WithHTTPClient replaces the http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) *client {
		c.httpclient = hc
		return c
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *client) *client {
		hc := *c.httpclient
		hc.Timeout = d
		c.httpclient = &hc
		return c
	}
}

func New(apiRoot string, options ...Option) (fetch.Fetcher, error) {
	if _, err := url.Parse(apiRoot); err != nil || apiRoot == "" {
		return nil, xe.WrapWithNote("api root", fmt.Errorf("invalid url: %q", apiRoot))
	}
	c := &client{
		httpclient: new(http.Client),
		api:        strings.TrimSuffix(apiRoot, "/"),
	}
	for _, opt := range options {
		c = opt(c)
	}
	return c, nil
}

func (c *client) FetchScalars(ctx context.Context, scope settings.Scope, xAxisType axis.XAxisType, refresh bool) (*scalar.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.api+"/scalars", nil)
	if err != nil {
		return nil, xe.Wrap(err)
	}

	q := req.URL.Query()
	if !scope.ProjectLevel() {
		q.Set("experiment", scope.Experiment)
	}
	q.Set("project", scope.Project)
	q.Set("x_axis", string(xAxisType))
	if refresh {
		q.Set("refresh", "")
	}
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpclient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fetch.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return nil, fmt.Errorf("%w: %w", fetch.ErrFetch, errorOf(resp))
	}

	var payload scalars.Scalars
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: broken response: %w", fetch.ErrFetch, err)
	}
	catalog, err := payload.Catalog()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fetch.ErrFetch, err)
	}
	return catalog, nil
}

// errorOf reads an error response. ErrorMessage in the body is used if any.
func errorOf(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("status code = %d (cannot read server message: %w)", resp.StatusCode, err)
	}

	msg := new(apierr.ErrorMessage)
	if err := json.Unmarshal(body, msg); err == nil {
		return fmt.Errorf("status code = %d: %w", resp.StatusCode, *msg)
	}
	eresp := new(apierr.ErrorResponse)
	if err := json.Unmarshal(body, eresp); err == nil && eresp.Message.Reason != "" {
		return fmt.Errorf("status code = %d: %w", resp.StatusCode, eresp.Message)
	}
	return fmt.Errorf("status code = %d: %s", resp.StatusCode, string(body))
}
