package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/models"
)

// ErrInvalidPayload is returned for bodies that cannot be normalized.
// Callers drop such payloads; they are never worth retrying.
var ErrInvalidPayload = errors.New("webhook: invalid payload")

// Shape identifies which wire variant a payload used.
type Shape string

const (
	ShapeUnknown   Shape = ""
	ShapeEnveloped Shape = "enveloped"
	ShapeFlat      Shape = "flat"
)

// Customer is the contact attached to a webhook lead.
type Customer struct {
	Name          string  `json:"name"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Phone2        *string `json:"phone2,omitempty"`
	Neighbourhood *string `json:"neighbourhood,omitempty"`
}

// Status is the lead status reported by the CRM.
type Status struct {
	ID    string `json:"id,omitempty"`
	Alias string `json:"alias"`
}

// Lead is the canonical form of an inbound CRM callback regardless of the
// wire variant it arrived in. Optional fields other than the customer's
// contact data are passed through as compacted JSON, whatever their type.
type Lead struct {
	ID           string          `json:"id,omitempty"`
	Customer     Customer        `json:"customer"`
	LeadStatus   Status          `json:"lead_status"`
	FunnelStatus json.RawMessage `json:"funnel_status,omitempty"`
	LeadSource   json.RawMessage `json:"lead_source,omitempty"`
	Seller       json.RawMessage `json:"seller,omitempty"`
	Product      json.RawMessage `json:"product,omitempty"`
	Description  json.RawMessage `json:"description,omitempty"`
	Notes        json.RawMessage `json:"notes,omitempty"`
	CreatedAt    json.RawMessage `json:"created_at,omitempty"`
	UpdatedAt    json.RawMessage `json:"updated_at,omitempty"`
}

// probe reads only the discriminant fields.
type probe struct {
	ID         json.RawMessage `json:"id"`
	Type       json.RawMessage `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
	Customer   json.RawMessage `json:"customer"`
}

func (p probe) shape() Shape {
	switch {
	case present(p.Type) && isObject(p.Attributes):
		return ShapeEnveloped
	case present(p.Customer):
		return ShapeFlat
	default:
		return ShapeUnknown
	}
}

type wireLead struct {
	ID           json.RawMessage `json:"id"`
	Customer     json.RawMessage `json:"customer"`
	LeadStatus   json.RawMessage `json:"lead_status"`
	FunnelStatus json.RawMessage `json:"funnel_status"`
	LeadSource   json.RawMessage `json:"lead_source"`
	Seller       json.RawMessage `json:"seller"`
	Product      json.RawMessage `json:"product"`
	Description  json.RawMessage `json:"description"`
	Notes        json.RawMessage `json:"notes"`
	CreatedAt    json.RawMessage `json:"created_at"`
	UpdatedAt    json.RawMessage `json:"updated_at"`
}

type wireCustomer struct {
	Name          json.RawMessage `json:"name"`
	Email         json.RawMessage `json:"email"`
	Phone         json.RawMessage `json:"phone"`
	Phone2        json.RawMessage `json:"phone2"`
	Neighbourhood json.RawMessage `json:"neighbourhood"`
}

type wireStatus struct {
	ID    json.RawMessage `json:"id"`
	Alias json.RawMessage `json:"alias"`
}

// Normalizer turns webhook bodies into Lead records.
type Normalizer struct {
	logger zerolog.Logger
}

// New constructs a Normalizer.
func New(logger zerolog.Logger) *Normalizer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Normalizer{logger: logger.With().Str("component", "webhook_normalizer").Logger()}
}

// Normalize decodes a raw webhook body. On failure it logs the reason and
// returns nil with an error wrapping ErrInvalidPayload.
func (n *Normalizer) Normalize(data []byte) (*Lead, error) {
	lead, shape, err := decode(data)
	if err != nil {
		n.logger.Error().
			Err(err).
			Str("shape", string(shape)).
			Int("bytes", len(data)).
			Msg("webhook: payload dropped")
		return nil, err
	}
	n.logger.Debug().
		Str("shape", string(shape)).
		Str("lead_id", lead.ID).
		Str("status", lead.LeadStatus.Alias).
		Msg("webhook: payload normalized")
	return lead, nil
}

// NormalizeValue normalizes an already decoded body, such as the result of
// unmarshalling into any.
func (n *Normalizer) NormalizeValue(v any) (*Lead, error) {
	switch raw := v.(type) {
	case []byte:
		return n.Normalize(raw)
	case json.RawMessage:
		return n.Normalize(raw)
	}
	data, err := json.Marshal(v)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		n.logger.Error().Err(err).Msg("webhook: payload dropped")
		return nil, err
	}
	return n.Normalize(data)
}

func decode(data []byte) (*Lead, Shape, error) {
	if !isObject(data) {
		return nil, ShapeUnknown, fmt.Errorf("%w: body is not a JSON object", ErrInvalidPayload)
	}

	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, ShapeUnknown, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	shape := p.shape()
	var body []byte
	switch shape {
	case ShapeEnveloped:
		body = p.Attributes
	case ShapeFlat:
		body = data
	default:
		return nil, shape, fmt.Errorf("%w: unrecognised shape", ErrInvalidPayload)
	}

	var w wireLead
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, shape, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	// the envelope carries the id outside of attributes
	if shape == ShapeEnveloped && present(p.ID) {
		w.ID = p.ID
	}

	lead, err := w.normalize()
	if err != nil {
		return nil, shape, err
	}
	return lead, shape, nil
}

func (w wireLead) normalize() (*Lead, error) {
	if !isObject(w.Customer) {
		return nil, fmt.Errorf("%w: customer is missing", ErrInvalidPayload)
	}
	var c wireCustomer
	if err := json.Unmarshal(w.Customer, &c); err != nil {
		return nil, fmt.Errorf("%w: customer: %v", ErrInvalidPayload, err)
	}
	name, ok := requiredString(c.Name)
	if !ok {
		return nil, fmt.Errorf("%w: customer.name must be a non-empty string", ErrInvalidPayload)
	}

	if !isObject(w.LeadStatus) {
		return nil, fmt.Errorf("%w: lead_status is missing", ErrInvalidPayload)
	}
	var s wireStatus
	if err := json.Unmarshal(w.LeadStatus, &s); err != nil {
		return nil, fmt.Errorf("%w: lead_status: %v", ErrInvalidPayload, err)
	}
	alias, ok := requiredString(s.Alias)
	if !ok {
		return nil, fmt.Errorf("%w: lead_status.alias must be a non-empty string", ErrInvalidPayload)
	}

	lead := &Lead{
		ID: textValue(w.ID),
		Customer: Customer{
			Name:          name,
			Email:         optionalText(c.Email),
			Phone:         optionalText(c.Phone),
			Phone2:        optionalText(c.Phone2),
			Neighbourhood: optionalText(c.Neighbourhood),
		},
		LeadStatus:   Status{ID: textValue(s.ID), Alias: alias},
		FunnelStatus: passThrough(w.FunnelStatus),
		LeadSource:   passThrough(w.LeadSource),
		Seller:       passThrough(w.Seller),
		Product:      passThrough(w.Product),
		Description:  passThrough(w.Description),
		Notes:        passThrough(w.Notes),
		CreatedAt:    passThrough(w.CreatedAt),
		UpdatedAt:    passThrough(w.UpdatedAt),
	}
	return lead, nil
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func requiredString(raw json.RawMessage) (string, bool) {
	var s string
	if !present(raw) || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// textValue renders strings and numbers as text and anything else as "".
func textValue(raw json.RawMessage) string {
	if !present(raw) {
		return ""
	}
	var id models.FlexibleID
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return id.String()
}

func optionalText(raw json.RawMessage) *string {
	if !present(raw) {
		return nil
	}
	var id models.FlexibleID
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil
	}
	s := id.String()
	return &s
}

func passThrough(raw json.RawMessage) json.RawMessage {
	if !present(raw) {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	return buf.Bytes()
}
