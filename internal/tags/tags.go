package tags

import (
	"strings"
	"time"

	"github.com/example/c2s-leadsync/internal/models"
)

// MaxTags caps the number of tags attached to a single lead.
const MaxTags = 20

// Input is what every rule group sees.
type Input struct {
	Lead     models.LeadInput
	Property *models.Property
	// Now is the moment the lead was captured, already in the business
	// time zone.
	Now time.Time
}

// Rule derives zero or more tags from an Input. Rules must not panic on
// missing data; they simply return nothing.
type Rule func(Input) []string

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the clock used when a lead carries no capture time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocation overrides the business time zone.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

// Engine evaluates the rule groups in a fixed order.
type Engine struct {
	now      func() time.Time
	location *time.Location
	rules    []Rule
}

// BusinessLocation is the fixed UTC-3 offset used by Brazilian business
// hours. A fixed zone keeps tagging independent of the host tzdata.
var BusinessLocation = time.FixedZone("BRT", -3*60*60)

// DefaultRules returns the rule groups in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		OriginRules,
		IntentRules,
		BehavioralRules,
		ValueRules,
		PropertyTypeRules,
		PurposeRules,
		LocationRules,
		FeatureRules,
	}
}

// New constructs an Engine with the default rule groups.
func New(opts ...Option) *Engine {
	e := &Engine{
		now:      time.Now,
		location: BusinessLocation,
		rules:    DefaultRules(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Generate returns the deduplicated tag set for lead and property, at most
// MaxTags entries long.
func (e *Engine) Generate(lead models.LeadInput, property *models.Property) []string {
	captured := lead.CapturedAt
	if captured.IsZero() {
		captured = e.now()
	}
	in := Input{
		Lead:     lead,
		Property: property,
		Now:      captured.In(e.location),
	}

	groups := make([][]string, 0, len(e.rules))
	for _, rule := range e.rules {
		groups = append(groups, rule(in))
	}
	return Merge(groups...)
}

// Merge unions groups in order, trimming values and dropping empties and
// duplicates, then truncates to MaxTags. Duplicates are found ignoring case;
// the first spelling wins.
func Merge(groups ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, MaxTags)
	for _, group := range groups {
		for _, tag := range group {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			folded := strings.ToLower(tag)
			if _, ok := seen[folded]; ok {
				continue
			}
			seen[folded] = struct{}{}
			out = append(out, tag)
			if len(out) == MaxTags {
				return out
			}
		}
	}
	return out
}
