package models

import (
	"encoding/json"
	"testing"
)

func TestFlexibleIDAcceptsStringsAndNumbers(t *testing.T) {
	cases := map[string]FlexibleID{
		`"abc"`: "abc",
		`42`:    "42",
		`4.5`:   "4.5",
		`null`:  "",
	}
	for raw, want := range cases {
		var id FlexibleID
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if id != want {
			t.Fatalf("%s: expected %q, got %q", raw, want, id)
		}
	}

	var id FlexibleID
	if err := json.Unmarshal([]byte(`{"id":1}`), &id); err == nil {
		t.Fatalf("expected objects to be rejected")
	}
}

func TestIntentNormalize(t *testing.T) {
	cases := map[Intent]Intent{
		" Buy ":    IntentBuy,
		"RENT":     IntentRent,
		"":         IntentOther,
		"lease":    IntentOther,
		"info":     IntentInfo,
		"evaluate": IntentEvaluate,
	}
	for in, want := range cases {
		if got := in.Normalize(); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}

func TestPropertyPrice(t *testing.T) {
	var nilProperty *Property
	if nilProperty.Price() != 0 {
		t.Fatalf("nil property must have no price")
	}
	rent := &Property{Purpose: PurposeRent, SalePrice: 900000, RentPrice: 3500}
	if rent.Price() != 3500 {
		t.Fatalf("expected rent price, got %v", rent.Price())
	}
	sale := &Property{Purpose: PurposeSale, SalePrice: 900000, RentPrice: 3500}
	if sale.Price() != 900000 {
		t.Fatalf("expected sale price, got %v", sale.Price())
	}
	season := &Property{Purpose: PurposeSeason, SalePrice: 500000}
	if season.Price() != 500000 {
		t.Fatalf("expected sale price fallback, got %v", season.Price())
	}
}

func TestCloneSharesNoState(t *testing.T) {
	lead := LeadInput{
		Name:        "Ana",
		Metadata:    map[string]string{"origin": "site"},
		Preferences: Preferences{Features: []string{"piscina"}},
	}
	cp := lead.Clone()
	cp.Metadata["origin"] = "changed"
	cp.Preferences.Features[0] = "changed"
	if lead.Metadata["origin"] != "site" || lead.Preferences.Features[0] != "piscina" {
		t.Fatalf("clone mutated the original: %+v", lead)
	}

	prop := &Property{Code: "AP-1"}
	pc := prop.Clone()
	pc.Code = "AP-2"
	if prop.Code != "AP-1" {
		t.Fatalf("property clone mutated the original")
	}
	if (*Property)(nil).Clone() != nil {
		t.Fatalf("nil clone must stay nil")
	}
}
