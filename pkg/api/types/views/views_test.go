package views_test

import (
	"encoding/json"
	"testing"

	"github.com/opst/scalarboard/pkg/api/types/views"
	"github.com/opst/scalarboard/pkg/engine"
	"github.com/opst/scalarboard/pkg/grouping"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/settings"
)

func TestComposeDisplay(t *testing.T) {
	for name, testcase := range map[string]struct {
		when engine.Display
		then string
	}{
		"nothing to display": {
			when: engine.Display{},
			then: `{"display_list":[],"options":[]}`,
		},
		"hidden options are listed": {
			when: engine.Display{
				DisplayList: []string{"acc"},
				Options: []grouping.Option{
					{Token: "acc", Name: "acc"},
					{Token: "loss", Name: "loss", Hidden: true},
				},
			},
			then: `{"display_list":["acc"],"options":[{"token":"acc","name":"acc","hidden":false},{"token":"loss","name":"loss","hidden":true}]}`,
		},
	} {
		t.Run(name, func(t *testing.T) {
			actual, err := json.Marshal(views.ComposeDisplay(testcase.when))
			if err != nil {
				t.Fatal(err)
			}
			if string(actual) != testcase.then {
				t.Errorf("unexpected json: %s", actual)
			}
		})
	}
}

func TestComposeCharts(t *testing.T) {
	actual, err := json.Marshal(views.ComposeCharts([]engine.Chart{
		{Name: scalar.SummaryMetric, Token: scalar.SummaryMetric, Metric: scalar.SummaryMetric, Summary: true,
			Values: []scalar.SingleValue{{Variant: "best", Value: 0.5}}},
		{Name: "loss - train", Token: "loss", Metric: "loss",
			Lines: []engine.Line{{Variant: "train"}}},
	}))
	if err != nil {
		t.Fatal(err)
	}
	expected := `[` +
		`{"name":"Summary","token":"Summary","metric":"Summary","summary":true,"values":[{"variant":"best","value":0.5}]},` +
		`{"name":"loss - train","token":"loss","metric":"loss","lines":[{"variant":"train","points":[]}]}` +
		`]`
	if string(actual) != expected {
		t.Errorf("unexpected json: %s", actual)
	}
}

func TestComposeSettings(t *testing.T) {
	t.Run("hidden list not established is null", func(t *testing.T) {
		actual, err := json.Marshal(views.ComposeSettings(settings.Defaults()))
		if err != nil {
			t.Fatal(err)
		}
		expected := `{"groupBy":"metric","xAxisType":"iter","smoothType":"none","smoothWeight":0,"smoothSigma":2,` +
			`"showOriginals":false,"hiddenMetricsScalar":null,"selectedMetricTable":null,"projectLevel":false}`
		if string(actual) != expected {
			t.Errorf("unexpected json: %s", actual)
		}
	})

	t.Run("established empty hidden list is an empty array", func(t *testing.T) {
		s := settings.Defaults()
		s.HiddenMetricsScalar = scalar.NewHiddenList()
		actual := views.ComposeSettings(s)
		b, err := json.Marshal(actual.HiddenMetricsScalar)
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != `[]` {
			t.Errorf("unexpected json: %s", b)
		}
	})
}

func TestScope(t *testing.T) {
	var s views.Scope
	if err := json.Unmarshal([]byte(`{"project":"p1"}`), &s); err != nil {
		t.Fatal(err)
	}
	if scope := s.Settings(); !scope.ProjectLevel() || scope.Project != "p1" {
		t.Errorf("unexpected scope: %+v", scope)
	}
	if back := views.ComposeScope(s.Settings()); back != s {
		t.Errorf("unexpected scope: %+v", back)
	}
}
