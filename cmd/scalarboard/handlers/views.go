package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	apierr "github.com/opst/scalarboard/pkg/api/types/errors"
	"github.com/opst/scalarboard/pkg/api/types/views"
	"github.com/opst/scalarboard/pkg/axis"
	"github.com/opst/scalarboard/pkg/engine"
	"github.com/opst/scalarboard/pkg/fetch"
	"github.com/opst/scalarboard/pkg/grouping"
	"github.com/opst/scalarboard/pkg/settings"
	"github.com/opst/scalarboard/pkg/smoothing"
)

func decode[T any](c echo.Context) (T, error) {
	var out T
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&out); err != nil {
		return out, apierr.NewErrorMessage(
			http.StatusBadRequest,
			"format error",
			apierr.WithAdvice(err.Error()),
			apierr.WithError(err),
		)
	}
	return out, nil
}

func viewOf(reg *engine.Registry, c echo.Context, param string) (*engine.View, error) {
	name := c.Param(param)
	v, ok := reg.Get(name)
	if !ok {
		return nil, apierr.NotFound("view " + name)
	}
	return v, nil
}

func errorOf(err error) error {
	switch {
	case errors.Is(err, engine.ErrNotOpened):
		return apierr.Conflict(
			"no scope is opened",
			apierr.WithAdvice("open a scope with PUT .../scope first."),
			apierr.WithError(err),
		)
	case errors.Is(err, fetch.ErrFetch):
		return apierr.BadGateway("retry later, or check the tracking backend.", err)
	default:
		return apierr.InternalServerError(err)
	}
}

func respondSettings(c echo.Context, eff settings.Settings, err error) error {
	if err != nil {
		return errorOf(err)
	}
	return c.JSON(http.StatusOK, views.ComposeSettings(eff))
}

func statusOf(v *engine.View) views.Status {
	s := views.Status{
		Overridden:     v.Overridden(),
		Flags:          views.ComposeFlags(v.Flags()),
		RefreshPending: v.RefreshPending(),
	}
	if scope, ok := v.Scope(); ok {
		sc := views.ComposeScope(scope)
		s.Scope = &sc
	}
	if err := v.LastError(); err != nil {
		s.LastError = err.Error()
	}
	return s
}

// PutScopeHandler opens a scope in the view, creating the view if missing.
//
// The scope is opened even if scalars are not fetched. Then, it responds 502.
func PutScopeHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		scope, err := decode[views.Scope](c)
		if err != nil {
			return err
		}
		if scope.Project == "" {
			return apierr.BadRequest(`"project" is required`, nil)
		}

		v := reg.Ensure(c.Param(param))
		if err := v.Open(c.Request().Context(), scope.Settings()); err != nil {
			return apierr.BadGateway("scope is opened, but scalars are not fetched. refresh later.", err)
		}
		return c.JSON(http.StatusOK, statusOf(v))
	}
}

func GetViewsHandler(reg *engine.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, views.Index{Views: reg.Names()})
	}
}

func GetViewHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, statusOf(v))
	}
}

func DeleteViewHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param(param)
		if !reg.Remove(name) {
			return apierr.NotFound("view " + name)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func GetSettingsHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		eff, err := v.EffectiveSettings()
		return respondSettings(c, eff, err)
	}
}

func GetChartsHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, views.ComposeCharts(v.ChartGroups()))
	}
}

func GetDisplayHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, views.ComposeDisplay(v.Display()))
	}
}

// PutHiddenToggleHandler toggles a token in the hidden list.
//
// The token is in the body, since metric names may contain slashes.
func PutHiddenToggleHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.Toggle](c)
		if err != nil {
			return err
		}
		if req.Token == "" {
			return apierr.BadRequest("token is required", nil)
		}
		eff, err := v.ToggleHidden(c.Request().Context(), req.Token)
		return respondSettings(c, eff, err)
	}
}

func PutHiddenHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.Hidden](c)
		if err != nil {
			return err
		}
		if req.Tokens == nil {
			req.Tokens = []string{}
		}
		eff, err := v.SetHidden(c.Request().Context(), req.Tokens)
		return respondSettings(c, eff, err)
	}
}

func PutSmoothingHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.Smoothing](c)
		if err != nil {
			return err
		}
		typ, err := smoothing.ParseType(req.Type)
		if err != nil {
			return apierr.BadRequest("type should be one of none, movingAverage, gaussian or exponential", err)
		}
		if w := req.Weight; w != nil && (*w < 0 || 1 < *w) {
			return apierr.BadRequest("weight should be in [0, 1]", nil)
		}
		if s := req.Sigma; s != nil && !(0 < *s && *s <= smoothing.MaxSigma) {
			return apierr.BadRequest(fmt.Sprintf("sigma should be in (0, %g]", smoothing.MaxSigma), nil)
		}
		eff, err := v.SetSmoothing(typ, req.Weight, req.Sigma)
		return respondSettings(c, eff, err)
	}
}

func PutGroupByHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.GroupBy](c)
		if err != nil {
			return err
		}
		mode, err := grouping.ParseMode(req.GroupBy)
		if err != nil {
			return apierr.BadRequest("group_by should be metric or none", err)
		}
		eff, err := v.SetGroupBy(c.Request().Context(), mode)
		return respondSettings(c, eff, err)
	}
}

func PutAxisHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.Axis](c)
		if err != nil {
			return err
		}
		t, ok := axis.Parse(req.XAxisType)
		if !ok {
			return apierr.BadRequest("x_axis_type should be one of iter, timestamp or iso_time", nil)
		}
		eff, err := v.SetAxisType(c.Request().Context(), t)
		return respondSettings(c, eff, err)
	}
}

func PutOriginalsHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.Originals](c)
		if err != nil {
			return err
		}
		eff, err := v.SetShowOriginals(c.Request().Context(), req.Show)
		return respondSettings(c, eff, err)
	}
}

func PostPromoteHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		if scope, ok := v.Scope(); ok && scope.ProjectLevel() {
			return apierr.Conflict("project-level scope can not be promoted")
		}
		eff, err := v.PromoteToProject(c.Request().Context())
		return respondSettings(c, eff, err)
	}
}

func PostResetHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		eff, err := v.ResetToProject(c.Request().Context())
		return respondSettings(c, eff, err)
	}
}

// PostRefreshHandler refreshes manually.
func PostRefreshHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		if err := v.Refresh(c.Request().Context(), true); err != nil {
			return errorOf(err)
		}
		return c.JSON(http.StatusOK, statusOf(v))
	}
}

func PutFlagsHandler(reg *engine.Registry, param string) echo.HandlerFunc {
	return func(c echo.Context) error {
		v, err := viewOf(reg, c, param)
		if err != nil {
			return err
		}
		req, err := decode[views.Flags](c)
		if err != nil {
			return err
		}
		v.SetFlags(req.Controller())
		return c.JSON(http.StatusOK, statusOf(v))
	}
}
