package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNormalizeFlatMinimal(t *testing.T) {
	n := New(zerolog.Nop())
	lead, err := n.Normalize([]byte(`{"id":"1","customer":{"name":"João"},"lead_status":{"id":1,"alias":"novo"}}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if lead.ID != "1" || lead.Customer.Name != "João" {
		t.Fatalf("unexpected lead %+v", lead)
	}
	if lead.LeadStatus.ID != "1" || lead.LeadStatus.Alias != "novo" {
		t.Fatalf("unexpected status %+v", lead.LeadStatus)
	}
	c := lead.Customer
	if c.Email != nil || c.Phone != nil || c.Phone2 != nil || c.Neighbourhood != nil {
		t.Fatalf("expected optional customer fields to be absent, got %+v", c)
	}
	if lead.FunnelStatus != nil || lead.LeadSource != nil || lead.Seller != nil || lead.Product != nil ||
		lead.Description != nil || lead.Notes != nil || lead.CreatedAt != nil || lead.UpdatedAt != nil {
		t.Fatalf("expected optional fields to be absent, got %+v", lead)
	}

	out, err := json.Marshal(lead)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"id":"1","customer":{"name":"João"},"lead_status":{"id":"1","alias":"novo"}}`; string(out) != want {
		t.Fatalf("unexpected canonical json %s", out)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	var logs bytes.Buffer
	n := New(zerolog.New(&logs))

	cases := map[string]string{
		"null":                  `null`,
		"array":                 `[{"customer":{"name":"A"}}]`,
		"string":                `"lead"`,
		"number":                `42`,
		"invalid json":          `{"customer":`,
		"empty object":          `{}`,
		"missing customer":      `{"id":"1","lead_status":{"alias":"novo"}}`,
		"customer not object":   `{"customer":"João","lead_status":{"alias":"novo"}}`,
		"missing name":          `{"customer":{"email":"a@b.com"},"lead_status":{"alias":"novo"}}`,
		"name not string":       `{"customer":{"name":7},"lead_status":{"alias":"novo"}}`,
		"blank name":            `{"customer":{"name":"  "},"lead_status":{"alias":"novo"}}`,
		"missing status":        `{"customer":{"name":"A"}}`,
		"missing alias":         `{"customer":{"name":"A"},"lead_status":{"id":1}}`,
		"alias not string":      `{"customer":{"name":"A"},"lead_status":{"alias":["novo"]}}`,
		"envelope no customer":  `{"type":"lead","id":"1","attributes":{"lead_status":{"alias":"novo"}}}`,
		"attributes not object": `{"type":"lead","attributes":"x"}`,
	}
	for name, body := range cases {
		lead, err := n.Normalize([]byte(body))
		if lead != nil {
			t.Fatalf("%s: expected nil lead, got %+v", name, lead)
		}
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%s: expected ErrInvalidPayload, got %v", name, err)
		}
	}
	if got := strings.Count(logs.String(), "payload dropped"); got != len(cases) {
		t.Fatalf("expected one error log per rejected payload, got %d", got)
	}
}

func TestNormalizeShapeIndependence(t *testing.T) {
	attributes := `{
		"customer": {"name": "Carla Souza", "email": "carla@example.com", "phone": 5548999990000, "neighbourhood": "Centro"},
		"lead_status": {"id": 3, "alias": "em_atendimento"},
		"funnel_status": {"id": 2, "alias": "qualificado"},
		"lead_source": {"id": 9, "name": "Site"},
		"seller": {"id": 4, "name": "Pedro"},
		"product": {"description": "Apartamento AP-101", "price": 850000},
		"description": "Quero Comprar Imóvel",
		"notes": [{"text": "ligar à tarde"}],
		"created_at": "2026-10-14T10:00:00-03:00",
		"updated_at": "2026-10-14T11:00:00-03:00"
	}`
	flat := `{"id": 321, ` + strings.TrimPrefix(strings.TrimSpace(attributes), "{")
	enveloped := `{"type": "lead", "id": "321", "attributes": ` + attributes + `}`

	n := New(zerolog.Nop())
	fromFlat, err := n.Normalize([]byte(flat))
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	fromEnvelope, err := n.Normalize([]byte(enveloped))
	if err != nil {
		t.Fatalf("enveloped: %v", err)
	}
	if !reflect.DeepEqual(fromFlat, fromEnvelope) {
		t.Fatalf("shapes normalized differently:\nflat:      %+v\nenveloped: %+v", fromFlat, fromEnvelope)
	}

	if fromFlat.ID != "321" || *fromFlat.Customer.Phone != "5548999990000" {
		t.Fatalf("unexpected id or phone: %+v", fromFlat)
	}
	if string(fromFlat.Product) != `{"description":"Apartamento AP-101","price":850000}` {
		t.Fatalf("expected product passed through, got %s", fromFlat.Product)
	}
	if string(fromFlat.Notes) != `[{"text":"ligar à tarde"}]` {
		t.Fatalf("expected notes passed through, got %s", fromFlat.Notes)
	}
}

func TestNormalizeKeepsNonStringOptionals(t *testing.T) {
	n := New(zerolog.Nop())
	lead, err := n.Normalize([]byte(`{
		"customer": {"name": "Rafa"},
		"lead_status": {"alias": "novo"},
		"description": {"text": "quer visitar", "channel": "whatsapp"},
		"created_at": 1791450000,
		"updated_at": "2026-10-14T11:00:00-03:00"
	}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if string(lead.Description) != `{"text":"quer visitar","channel":"whatsapp"}` {
		t.Fatalf("expected description object kept, got %s", lead.Description)
	}
	if string(lead.CreatedAt) != `1791450000` || string(lead.UpdatedAt) != `"2026-10-14T11:00:00-03:00"` {
		t.Fatalf("expected timestamps kept as sent, got %s / %s", lead.CreatedAt, lead.UpdatedAt)
	}

	out, err := json.Marshal(lead)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(out), `"description":{"text":"quer visitar","channel":"whatsapp"}`) {
		t.Fatalf("description missing from canonical json %s", out)
	}
}

func TestNormalizeValue(t *testing.T) {
	n := New(zerolog.Nop())

	var decoded any
	if err := json.Unmarshal([]byte(`{"customer":{"name":"João"},"lead_status":{"alias":"novo"}}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	lead, err := n.NormalizeValue(decoded)
	if err != nil || lead.Customer.Name != "João" {
		t.Fatalf("expected decoded map to normalize, got %+v, %v", lead, err)
	}

	if lead, err := n.NormalizeValue(json.RawMessage(`{"customer":{"name":"Ana"},"lead_status":{"alias":"novo"}}`)); err != nil || lead.Customer.Name != "Ana" {
		t.Fatalf("expected raw message to normalize, got %+v, %v", lead, err)
	}

	for _, v := range []any{nil, "texto", 12, []any{}, map[string]any{"customer": nil}, func() {}} {
		if lead, err := n.NormalizeValue(v); lead != nil || !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("%T: expected invalid payload, got %+v, %v", v, lead, err)
		}
	}
}

func TestProbeShape(t *testing.T) {
	cases := []struct {
		body string
		want Shape
	}{
		{`{"type":"lead","attributes":{}}`, ShapeEnveloped},
		{`{"customer":{}}`, ShapeFlat},
		{`{"type":"lead","customer":{}}`, ShapeFlat},
		{`{"attributes":{},"customer":{}}`, ShapeFlat},
		{`{"type":"lead"}`, ShapeUnknown},
		{`{"customer":null}`, ShapeUnknown},
	}
	for _, tc := range cases {
		var p probe
		if err := json.Unmarshal([]byte(tc.body), &p); err != nil {
			t.Fatalf("%s: %v", tc.body, err)
		}
		if got := p.shape(); got != tc.want {
			t.Fatalf("%s: shape = %q, want %q", tc.body, got, tc.want)
		}
	}
}
