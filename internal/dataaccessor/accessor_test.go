package dataaccessor

import (
	"testing"

	"go.uber.org/zap"
)

func TestValidateField(t *testing.T) {
	m := DefaultManifest()
	if o := m.ValidateField("adj_close"); !o.OK {
		t.Fatal("expected adj_close to be permitted")
	}
	if o := m.ValidateField("raw_close"); o.OK {
		t.Fatal("expected raw_close to be forbidden")
	} else if o.Suggestion != "adj_close" && o.Suggestion != "adj_open" && o.Suggestion != "adj_high" && o.Suggestion != "adj_low" && o.Suggestion != "adj_volume" {
		t.Fatalf("expected adjusted-price suggestion, got %q", o.Suggestion)
	}
	if o := m.ValidateField("does_not_exist"); o.OK {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestAccessorGet_SampleFallback(t *testing.T) {
	a := New(zap.NewNop(), DefaultManifest(), t.TempDir())
	m, err := a.Get("adj_close", []string{"2330", "2454"})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Dates) == 0 || len(m.Symbols) != 2 {
		t.Fatalf("unexpected matrix shape: %d dates, %d symbols", len(m.Dates), len(m.Symbols))
	}

	m2, err := a.Get("adj_close", []string{"2330", "2454"})
	if err != nil {
		t.Fatal(err)
	}
	if &m.Values[0][0] != &m2.Values[0][0] {
		// not required to be same pointer, but cached values must be identical
		if m.Values[0][0] != m2.Values[0][0] {
			t.Fatal("expected cached matrix to be returned on second Get")
		}
	}
}

func TestAccessorGet_ForbiddenKey(t *testing.T) {
	a := New(zap.NewNop(), DefaultManifest(), t.TempDir())
	if _, err := a.Get("raw_close", []string{"2330"}); err == nil {
		t.Fatal("expected forbidden-field error")
	}
}
