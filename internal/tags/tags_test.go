package tags

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/example/c2s-leadsync/internal/models"
)

// 2026-10-14 is a Wednesday.
func brt(day, hour int) time.Time {
	return time.Date(2026, time.October, day, hour, 0, 0, 0, BusinessLocation)
}

func contains(tags []string, want string) bool {
	for _, tag := range tags {
		if tag == want {
			return true
		}
	}
	return false
}

func TestGenerateBuyLeadDuringBusinessHours(t *testing.T) {
	engine := New()
	lead := models.LeadInput{
		Name:       "Maria Silva",
		Phone:      "(48) 99999-1234",
		Intent:     models.IntentBuy,
		Source:     "site",
		CapturedAt: brt(14, 10).UTC(),
	}

	got := engine.Generate(lead, nil)

	for _, want := range []string{"origem:site", "intencao:compra", TagBusinessHours} {
		if !contains(got, want) {
			t.Fatalf("expected %q in %v", want, got)
		}
	}
	if contains(got, TagUrgent) {
		t.Fatalf("did not expect %q during business hours: %v", TagUrgent, got)
	}
}

func TestBehavioralRules(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want []string
	}{
		{"weekday morning", brt(14, 8), []string{TagBusinessHours}},
		{"weekday evening", brt(14, 18), []string{TagUrgent}},
		{"weekday night", brt(14, 23), []string{TagUrgent}},
		{"saturday", brt(17, 11), []string{TagUrgent, TagWeekendEngaged}},
		{"sunday", brt(18, 9), []string{TagUrgent, TagWeekendEngaged}},
	}
	for _, tc := range cases {
		got := BehavioralRules(Input{Now: tc.at})
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}

	if got := BehavioralRules(Input{}); got != nil {
		t.Fatalf("expected no tags without a clock, got %v", got)
	}
}

func TestGenerateUsesBusinessTimeZone(t *testing.T) {
	// 12:00 UTC is 09:00 in the business zone.
	at := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	engine := New(WithClock(func() time.Time { return at }))

	got := engine.Generate(models.LeadInput{Name: "Ana"}, nil)
	if !contains(got, TagBusinessHours) {
		t.Fatalf("expected business-hours tag from clock, got %v", got)
	}

	// 22:00 UTC is 19:00 in the business zone.
	late := time.Date(2026, time.October, 14, 22, 0, 0, 0, time.UTC)
	got = engine.Generate(models.LeadInput{Name: "Ana", CapturedAt: late}, nil)
	if !contains(got, TagUrgent) {
		t.Fatalf("expected capture time to win over clock, got %v", got)
	}
}

func TestValueBrackets(t *testing.T) {
	cases := []struct {
		property models.Property
		want     string
	}{
		{models.Property{Purpose: models.PurposeSale, SalePrice: 1_500_000}, "valor:alto"},
		{models.Property{Purpose: models.PurposeSale, SalePrice: 1_499_999}, "valor:medio"},
		{models.Property{Purpose: models.PurposeSale, SalePrice: 600_000}, "valor:medio"},
		{models.Property{Purpose: models.PurposeSale, SalePrice: 350_000}, "valor:entrada"},
		{models.Property{Purpose: models.PurposeRent, RentPrice: 8_000}, "valor:alto"},
		{models.Property{Purpose: models.PurposeRent, RentPrice: 3_000}, "valor:medio"},
		{models.Property{Purpose: models.PurposeRent, RentPrice: 2_999}, "valor:entrada"},
		{models.Property{Purpose: models.PurposeSeason, RentPrice: 9_000}, "valor:alto"},
		{models.Property{RentPrice: 4_000}, "valor:medio"},
	}
	for _, tc := range cases {
		p := tc.property
		got := ValueRules(Input{Property: &p})
		if len(got) != 1 || got[0] != tc.want {
			t.Fatalf("ValueRules(%+v) = %v, want %q", p, got, tc.want)
		}
	}

	if got := ValueRules(Input{Property: &models.Property{}}); got != nil {
		t.Fatalf("expected no value tag without price, got %v", got)
	}

	budget := Input{Lead: models.LeadInput{Intent: models.IntentRent, Preferences: models.Preferences{BudgetMax: 5_000}}}
	if got := ValueRules(budget); len(got) != 1 || got[0] != "valor:medio" {
		t.Fatalf("expected rent budget bracket, got %v", got)
	}
}

func TestLocationRules(t *testing.T) {
	cases := []struct {
		distance float64
		want     string
	}{
		{80, "frente-mar"},
		{100, "frente-mar"},
		{250, "quadra-mar"},
		{1000, "proximo-praia"},
	}
	for _, tc := range cases {
		p := models.Property{
			Address:               models.Address{Neighborhood: "Jurerê Internacional", City: "Florianópolis"},
			DistanceToBeachMeters: tc.distance,
		}
		got := LocationRules(Input{Property: &p})
		if !contains(got, tc.want) {
			t.Fatalf("distance %.0f: expected %q in %v", tc.distance, tc.want, got)
		}
		if !contains(got, "bairro:jurere-internacional") || !contains(got, "cidade:florianopolis") {
			t.Fatalf("expected slugged location tags, got %v", got)
		}
	}

	far := models.Property{DistanceToBeachMeters: 1500}
	for _, tag := range LocationRules(Input{Property: &far}) {
		if tag == "frente-mar" || tag == "quadra-mar" || tag == "proximo-praia" {
			t.Fatalf("did not expect beach tag for distant property, got %q", tag)
		}
	}
}

func TestGenerateEnrichedLead(t *testing.T) {
	engine := New()
	lead := models.LeadInput{
		Name:       "Carlos",
		Intent:     models.IntentBuy,
		Source:     "Instagram",
		UTM:        models.UTM{Source: "instagram", Medium: "social", Campaign: "Verão 2026"},
		CapturedAt: brt(17, 15),
	}
	property := &models.Property{
		Code:                  "AP9",
		Type:                  "Apartamento",
		Purpose:               models.PurposeSale,
		SalePrice:             2_100_000,
		Suites:                3,
		Area:                  240,
		Address:               models.Address{Neighborhood: "Jurerê", City: "Florianópolis"},
		DistanceToBeachMeters: 90,
		IsLaunch:              true,
		OceanView:             true,
	}

	got := engine.Generate(lead, property)
	want := []string{
		"origem:instagram",
		"utm:instagram",
		"midia:social",
		"campanha:verao-2026",
		"intencao:compra",
		TagUrgent,
		TagWeekendEngaged,
		"valor:alto",
		"tipo:apartamento",
		"finalidade:venda",
		"bairro:jurere",
		"cidade:florianopolis",
		"frente-mar",
		"lancamento",
		"vista-mar",
		"multi-suites",
		"amplo",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected tags:\n got %v\nwant %v", got, want)
	}
}

func TestGenerateWithEmptyInput(t *testing.T) {
	got := New(WithClock(func() time.Time { return brt(14, 10) })).Generate(models.LeadInput{}, nil)
	if fmt.Sprint(got) != fmt.Sprint([]string{TagBusinessHours}) {
		t.Fatalf("expected only the behavioral tag, got %v", got)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"a", "", " b "}, nil, []string{"b", "a", "c"})
	if fmt.Sprint(got) != "[a b c]" {
		t.Fatalf("unexpected merge result %v", got)
	}

	got = Merge([]string{"VIP", " vip "}, []string{"Vip", "novo"})
	if fmt.Sprint(got) != "[VIP novo]" {
		t.Fatalf("expected case-insensitive dedupe keeping the first spelling, got %v", got)
	}

	var many []string
	for i := 0; i < 30; i++ {
		many = append(many, fmt.Sprintf("tag-%d", i))
	}
	got = Merge(many)
	if len(got) != MaxTags || got[0] != "tag-0" || got[MaxTags-1] != "tag-19" {
		t.Fatalf("expected first %d tags, got %v", MaxTags, got)
	}
}

func TestGenerateIsDedupedAndCapped(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	words := []string{"", " ", "site", "Site", "São José", "apartamento", "casa", "google", "!!", "Jurerê"}
	pick := func() string { return words[rnd.Intn(len(words))] }
	intents := []models.Intent{"", models.IntentBuy, models.IntentRent, "SELL", "unknown"}

	engine := New()
	for i := 0; i < 1000; i++ {
		lead := models.LeadInput{
			Source:     pick(),
			FormType:   pick(),
			Intent:     intents[rnd.Intn(len(intents))],
			UTM:        models.UTM{Source: pick(), Medium: pick(), Campaign: pick()},
			Consent:    models.Consent{WhatsApp: rnd.Intn(2) == 0},
			CapturedAt: time.Unix(rnd.Int63n(2_000_000_000), 0),
			Preferences: models.Preferences{
				BudgetMax:    float64(rnd.Intn(3_000_000)),
				PropertyType: pick(),
				Neighborhood: pick(),
			},
		}
		var property *models.Property
		if rnd.Intn(2) == 0 {
			property = &models.Property{
				Type:                  pick(),
				Purpose:               []string{"", models.PurposeSale, models.PurposeRent, models.PurposeSeason, "x"}[rnd.Intn(5)],
				SalePrice:             float64(rnd.Intn(3_000_000)),
				RentPrice:             float64(rnd.Intn(15_000)),
				Suites:                rnd.Intn(4),
				Area:                  float64(rnd.Intn(400)),
				Address:               models.Address{Neighborhood: pick(), City: pick()},
				DistanceToBeachMeters: float64(rnd.Intn(2000) - 100),
				OceanView:             rnd.Intn(2) == 0,
				Furnished:             rnd.Intn(2) == 0,
				PetFriendly:           rnd.Intn(2) == 0,
				IsLaunch:              rnd.Intn(2) == 0,
				IsExclusive:           rnd.Intn(2) == 0,
			}
		}

		got := engine.Generate(lead, property)
		if len(got) > MaxTags {
			t.Fatalf("expected at most %d tags, got %d: %v", MaxTags, len(got), got)
		}
		seen := make(map[string]bool, len(got))
		for _, tag := range got {
			if tag == "" {
				t.Fatalf("empty tag in %v", got)
			}
			if seen[tag] {
				t.Fatalf("duplicate tag %q in %v", tag, got)
			}
			seen[tag] = true
		}
	}
}
