package echoutil_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/opst/scalarboard/pkg/utils/echoutil"
)

func TestParseLevel(t *testing.T) {
	for when, then := range map[string]log.Lvl{
		"":      log.INFO,
		"debug": log.DEBUG,
		"INFO":  log.INFO,
		"Warn":  log.WARN,
		"error": log.ERROR,
		"off":   log.OFF,
	} {
		t.Run(when, func(t *testing.T) {
			actual, err := echoutil.ParseLevel(when)
			if err != nil {
				t.Fatal(err)
			}
			if actual != then {
				t.Errorf("unexpected level: %d", actual)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := echoutil.ParseLevel("verbose"); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}

func TestLogHandlerFunc(t *testing.T) {
	for name, testcase := range map[string]struct {
		when echo.HandlerFunc
		then string
	}{
		"success is info": {
			when: func(c echo.Context) error {
				return c.NoContent(http.StatusNoContent)
			},
			then: `"level":"INFO"`,
		},
		"http error 4xx is warn": {
			when: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound)
			},
			then: `"level":"WARN"`,
		},
		"other error is error": {
			when: func(c echo.Context) error {
				return echo.ErrInternalServerError
			},
			then: `"level":"ERROR"`,
		},
	} {
		t.Run(name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			e := echo.New()
			e.Logger.SetOutput(buf)
			echoutil.SetLevel(e, log.INFO)

			req := httptest.NewRequest(http.MethodGet, "/api/views/main/charts", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			echoutil.LogHandlerFunc(testcase.when)(c)

			out := buf.String()
			if !strings.Contains(out, testcase.then) {
				t.Errorf("unexpected log: %s", out)
			}
			if !strings.Contains(out, "/api/views/main/charts") {
				t.Errorf("path is not logged: %s", out)
			}
		})
	}
}
