package models

import (
	"strings"
	"time"
)

// Intent expresses what the prospect wants to do.
type Intent string

// Supported intents.
const (
	IntentBuy      Intent = "buy"
	IntentSell     Intent = "sell"
	IntentRent     Intent = "rent"
	IntentEvaluate Intent = "evaluate"
	IntentInfo     Intent = "info"
	IntentOther    Intent = "other"
)

// Normalize maps unknown or empty values to IntentOther.
func (i Intent) Normalize() Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(string(i)))) {
	case IntentBuy:
		return IntentBuy
	case IntentSell:
		return IntentSell
	case IntentRent:
		return IntentRent
	case IntentEvaluate:
		return IntentEvaluate
	case IntentInfo:
		return IntentInfo
	default:
		return IntentOther
	}
}

// UTM carries campaign attribution captured by the site.
type UTM struct {
	Source   string `json:"source,omitempty"`
	Medium   string `json:"medium,omitempty"`
	Campaign string `json:"campaign,omitempty"`
	Term     string `json:"term,omitempty"`
	Content  string `json:"content,omitempty"`
}

// IsZero reports whether no attribution was captured.
func (u UTM) IsZero() bool {
	return u == UTM{}
}

// Consent records the opt-ins given on the form.
type Consent struct {
	Privacy   bool `json:"privacy"`
	Marketing bool `json:"marketing"`
	WhatsApp  bool `json:"whatsapp"`
}

// Preferences holds free-form search criteria for leads without a linked
// property.
type Preferences struct {
	BudgetMin         float64  `json:"budgetMin,omitempty"`
	BudgetMax         float64  `json:"budgetMax,omitempty"`
	PropertyType      string   `json:"propertyType,omitempty"`
	Bedrooms          int      `json:"bedrooms,omitempty"`
	Features          []string `json:"features,omitempty"`
	Address           string   `json:"address,omitempty"`
	Neighborhood      string   `json:"neighborhood,omitempty"`
	ContactPreference string   `json:"contactPreference,omitempty"`
	BestTimeToContact string   `json:"bestTimeToContact,omitempty"`
}

// LeadInput is the caller-supplied intent record. The engine never mutates
// it after hand-off.
type LeadInput struct {
	Name         string            `json:"name"`
	Email        string            `json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Message      string            `json:"message,omitempty"`
	Intent       Intent            `json:"intent,omitempty"`
	Source       string            `json:"source,omitempty"`
	FormType     string            `json:"formType,omitempty"`
	PropertyID   string            `json:"propertyId,omitempty"`
	PropertyCode string            `json:"propertyCode,omitempty"`
	UTM          UTM               `json:"utm,omitempty"`
	Consent      Consent           `json:"consent"`
	Preferences  Preferences       `json:"preferences,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CapturedAt   time.Time         `json:"capturedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with l.
func (l LeadInput) Clone() LeadInput {
	out := l
	if l.Metadata != nil {
		out.Metadata = make(map[string]string, len(l.Metadata))
		for k, v := range l.Metadata {
			out.Metadata[k] = v
		}
	}
	if l.Preferences.Features != nil {
		out.Preferences.Features = append([]string(nil), l.Preferences.Features...)
	}
	return out
}
