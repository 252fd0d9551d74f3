package rest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opst/scalarboard/pkg/axis"
	"github.com/opst/scalarboard/pkg/fetch"
	"github.com/opst/scalarboard/pkg/fetch/rest"
	"github.com/opst/scalarboard/pkg/settings"
	"github.com/opst/scalarboard/pkg/utils/cmp"
	"github.com/opst/scalarboard/pkg/utils/try"
)

func TestFetchScalars(t *testing.T) {
	t.Run("it sends the scope and the axis type, and builds a catalog", func(t *testing.T) {
		var got *http.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"metrics": {"loss": {"train": [{"x": 1, "y": 0.5}]}}}`))
		}))
		defer server.Close()

		testee := try.To(rest.New(server.URL + "/api/")).OrFatal(t)
		catalog := try.To(testee.FetchScalars(
			context.Background(),
			settings.Scope{Experiment: "e1", Project: "p1"},
			axis.Timestamp,
			true,
		)).OrFatal(t)

		if got.URL.Path != "/api/scalars" {
			t.Errorf("unexpected path: %s", got.URL.Path)
		}
		q := got.URL.Query()
		if q.Get("experiment") != "e1" || q.Get("project") != "p1" || q.Get("x_axis") != "timestamp" || !q.Has("refresh") {
			t.Errorf("unexpected query: %s", got.URL.RawQuery)
		}
		if !cmp.SliceEq(catalog.Metrics(), []string{"loss"}) {
			t.Errorf("unexpected catalog: %v", catalog.Metrics())
		}
	})

	t.Run("project-level scope does not send experiment", func(t *testing.T) {
		var got *http.Request
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r
			w.Write([]byte(`{"metrics": {}}`))
		}))
		defer server.Close()

		testee := try.To(rest.New(server.URL)).OrFatal(t)
		try.To(testee.FetchScalars(context.Background(), settings.Scope{Project: "p1"}, axis.Iteration, false)).OrFatal(t)

		if q := got.URL.Query(); q.Has("experiment") || q.Has("refresh") {
			t.Errorf("unexpected query: %s", got.URL.RawQuery)
		}
	})

	for name, testcase := range map[string]struct {
		status  int
		body    string
		message string
	}{
		"error message": {
			status: http.StatusNotFound, body: `{"reason": "no such experiment"}`, message: "no such experiment",
		},
		"error response": {
			status: http.StatusServiceUnavailable, body: `{"message": {"reason": "busy"}}`, message: "busy",
		},
		"plain text": {
			status: http.StatusInternalServerError, body: `oops`, message: "oops",
		},
		"broken payload": {
			status: http.StatusOK, body: `{"metrics": `, message: "broken response",
		},
		"duplicated single value": {
			status: http.StatusOK, body: `{"metrics": {}, "single_values": [{"variant": "a"}, {"variant": "a"}]}`, message: "duplicated",
		},
	} {
		t.Run("it fails with "+name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testcase.status)
				w.Write([]byte(testcase.body))
			}))
			defer server.Close()

			testee := try.To(rest.New(server.URL)).OrFatal(t)
			_, err := testee.FetchScalars(context.Background(), settings.Scope{Project: "p1"}, axis.Iteration, false)
			if !errors.Is(err, fetch.ErrFetch) {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(err.Error(), testcase.message) {
				t.Errorf("message is missing: %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if _, err := rest.New(""); err == nil {
		t.Error("empty api root should be error")
	}
}
