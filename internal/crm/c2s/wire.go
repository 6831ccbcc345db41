package c2s

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/models"
)

const leadResourceType = "lead"

// leadEnvelope is the vendor envelope used only for lead creation.
type leadEnvelope struct {
	Data leadEnvelopeData `json:"data"`
}

type leadEnvelopeData struct {
	Type       string          `json:"type"`
	Attributes crm.LeadPayload `json:"attributes"`
}

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

// Lead is a CRM lead resource as returned by the API.
type Lead struct {
	ID         models.FlexibleID `json:"id"`
	Type       string            `json:"type,omitempty"`
	Attributes json.RawMessage   `json:"attributes,omitempty"`
}

// LeadList is a page of leads.
type LeadList struct {
	Data []Lead          `json:"data"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

// LeadQuery filters GetLeads.
type LeadQuery struct {
	Page         int
	PerPage      int
	Status       string
	Phone        string
	Email        string
	CreatedAfter time.Time
}

func (q LeadQuery) values() url.Values {
	out := url.Values{}
	if q.Page > 0 {
		out.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		out.Set("perpage", strconv.Itoa(q.PerPage))
	}
	if s := strings.TrimSpace(q.Status); s != "" {
		out.Set("status", s)
	}
	if s := strings.TrimSpace(q.Phone); s != "" {
		out.Set("phone", s)
	}
	if s := strings.TrimSpace(q.Email); s != "" {
		out.Set("email", s)
	}
	if !q.CreatedAfter.IsZero() {
		out.Set("created_gte", q.CreatedAfter.UTC().Format(time.RFC3339))
	}
	return out
}

// Tag is a label attached to a lead.
type Tag struct {
	ID   models.FlexibleID `json:"id,omitempty"`
	Name string            `json:"name"`
}

// Seller is a CRM user that can own leads.
type Seller struct {
	ID    models.FlexibleID `json:"id,omitempty"`
	Name  string            `json:"name"`
	Email string            `json:"email,omitempty"`
	Phone string            `json:"phone,omitempty"`
}

// SellerInput creates or updates a seller.
type SellerInput struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// DistributionQueue is a round-robin lead distribution queue.
type DistributionQueue struct {
	ID      models.FlexibleID `json:"id"`
	Name    string            `json:"name"`
	Active  bool              `json:"active"`
	Sellers []Seller          `json:"sellers,omitempty"`
}

// VisitRequest schedules a property visit.
type VisitRequest struct {
	LeadID      string    `json:"lead_id"`
	SellerID    string    `json:"seller_id,omitempty"`
	PropertyRef string    `json:"prop_ref,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
}

// ActivityRequest records an activity on a lead's timeline.
type ActivityRequest struct {
	LeadID      string     `json:"lead_id"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// DoneRequest closes a lead as a won deal.
type DoneRequest struct {
	Value float64 `json:"value,omitempty"`
	Notes string  `json:"notes,omitempty"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

type subscriptionRequest struct {
	HookURL string `json:"hook_url"`
}

type resourceID struct {
	ID models.FlexibleID `json:"id"`
}

// errorBody covers the error shapes the API is known to return:
// {"errors":[...]} with strings or objects, {"message":"..."} and
// {"error":"..."}.
type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  []json.RawMessage `json:"errors"`
}

type errorItem struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Title   string `json:"title"`
	Source  struct {
		Pointer string `json:"pointer"`
	} `json:"source"`
}

func parseAPIError(status int, body []byte) *crm.APIError {
	apiErr := &crm.APIError{StatusCode: status}

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = strings.TrimSpace(firstNonEmpty(parsed.Message, parsed.Error))
		for _, raw := range parsed.Errors {
			if fe, ok := decodeErrorItem(raw); ok {
				apiErr.Errors = append(apiErr.Errors, fe)
			}
		}
	}
	if apiErr.Message == "" && len(apiErr.Errors) > 0 {
		apiErr.Message = apiErr.Errors[0].Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func decodeErrorItem(raw json.RawMessage) (crm.FieldError, bool) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		return crm.FieldError{Message: text}, text != ""
	}

	var item errorItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return crm.FieldError{}, false
	}
	field := item.Field
	if field == "" && item.Source.Pointer != "" {
		field = item.Source.Pointer[strings.LastIndex(item.Source.Pointer, "/")+1:]
	}
	fe := crm.FieldError{
		Field:   field,
		Code:    item.Code,
		Message: firstNonEmpty(item.Message, item.Detail, item.Title),
	}
	return fe, fe.Message != "" || fe.Code != ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
