package scalars_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/opst/scalarboard/pkg/api/types/scalars"
	"github.com/opst/scalarboard/pkg/scalar"
	"github.com/opst/scalarboard/pkg/utils/cmp"
)

func TestCatalog(t *testing.T) {
	t.Run("it builds a catalog from a response", func(t *testing.T) {
		payload := `{
			"metrics": {
				"loss": {"val": [{"x": 1, "y": 0.5}], "train": [{"x": 1, "y": 0.4}, {"x": 2, "y": 0.3}]},
				"empty": {}
			},
			"single_values": [{"variant": "f1", "value": 0.8}]
		}`
		var s scalars.Scalars
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			t.Fatal(err)
		}

		c, err := s.Catalog()
		if err != nil {
			t.Fatal(err)
		}
		if !cmp.SliceEq(c.Metrics(), []string{"empty", "loss"}) {
			t.Errorf("unexpected metrics: %v", c.Metrics())
		}
		train, ok := c.Series("loss", "train")
		if !ok || !cmp.SliceEq(train.Points, []scalar.Point{{X: 1, Y: 0.4}, {X: 2, Y: 0.3}}) {
			t.Errorf("unexpected series: %+v", train)
		}
		if !cmp.SliceEq(c.SingleValues(), []scalar.SingleValue{{Variant: "f1", Value: 0.8}}) {
			t.Errorf("unexpected single values: %+v", c.SingleValues())
		}

		back, err := scalars.From(c).Catalog()
		if err != nil {
			t.Fatal(err)
		}
		if back.Fingerprint() != c.Fingerprint() {
			t.Error("catalog changes through the wire format")
		}
	})

	t.Run("duplicated single value is an error", func(t *testing.T) {
		s := scalars.Scalars{SingleValues: []scalar.SingleValue{
			{Variant: "f1", Value: 1}, {Variant: "f1", Value: 2},
		}}
		if _, err := s.Catalog(); !errors.Is(err, scalar.ErrDuplicatePair) {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
