package mapper

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/util"
)

// GenericTitle is used when nothing more specific is known about a lead.
const GenericTitle = "Contato pelo Site"

var formTypeTitles = map[string]string{
	"contact":        GenericTitle,
	"schedule_visit": "Agendamento de Visita",
	"evaluation":     "Solicitação de Avaliação de Imóvel",
	"announce":       "Quero Anunciar Meu Imóvel",
	"financing":      "Simulação de Financiamento",
	"whatsapp":       "Contato via WhatsApp",
	"launch":         "Interesse em Lançamento",
	"callback":       "Solicitação de Retorno",
}

var intentTitles = map[models.Intent]string{
	models.IntentBuy:      "Quero Comprar Imóvel",
	models.IntentSell:     "Quero Vender Meu Imóvel",
	models.IntentRent:     "Quero Alugar Imóvel",
	models.IntentEvaluate: "Quero Avaliar Meu Imóvel",
	models.IntentInfo:     "Solicitação de Informações",
}

var sourceLabels = map[string]string{
	"site":      "Site",
	"website":   "Site",
	"whatsapp":  "WhatsApp",
	"instagram": "Instagram",
	"facebook":  "Facebook",
	"google":    "Google",
	"portal":    "Portal Imobiliário",
	"email":     "E-mail",
	"phone":     "Telefone",
}

// Option customises a Mapper.
type Option func(*Mapper)

// WithCountryCode overrides the country code prepended to domestic phones.
func WithCountryCode(code string) Option {
	return func(m *Mapper) {
		if digits := util.DigitsOnly(code); digits != "" {
			m.countryCode = digits
		}
	}
}

// WithCompanyID attaches a company identifier to every payload.
func WithCompanyID(id string) Option {
	return func(m *Mapper) {
		m.companyID = strings.TrimSpace(id)
	}
}

// WithDefaultSellerID attaches a seller to every payload.
func WithDefaultSellerID(id string) Option {
	return func(m *Mapper) {
		m.sellerID = strings.TrimSpace(id)
	}
}

// Mapper converts LeadInput and Property snapshots into the CRM schema. All
// methods are pure apart from logging suspicious phone numbers.
type Mapper struct {
	logger      zerolog.Logger
	countryCode string
	companyID   string
	sellerID    string
}

// New constructs a Mapper.
func New(logger zerolog.Logger, opts ...Option) *Mapper {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	m := &Mapper{
		logger:      logger,
		countryCode: DefaultCountryCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// BuildLeadPayload maps lead and the optional property into a CRM payload.
// Tags are left empty; the tag engine fills them in.
func (m *Mapper) BuildLeadPayload(lead models.LeadInput, property *models.Property) crm.LeadPayload {
	payload := crm.LeadPayload{
		Name:        strings.Join(strings.Fields(lead.Name), " "),
		Email:       SanitizeEmail(lead.Email),
		Phone:       m.Phone(lead.Phone),
		Title:       Title(lead, property),
		Description: Description(lead, property),
		Source:      SourceLabel(lead),
		PropertyRef: propertyRef(lead, property),
		SellerID:    m.sellerID,
		CompanyID:   m.companyID,
	}
	return payload
}

// Phone normalizes raw and logs numbers that look suspicious.
func (m *Mapper) Phone(raw string) string {
	phone, plausible := NormalizePhone(raw, m.countryCode)
	if phone != "" && !plausible {
		m.logger.Warn().
			Int("digits", len(phone)).
			Str("country_code", m.countryCode).
			Msg("mapper: phone number length outside expected range")
	}
	return phone
}

// Title picks the lead title: explicit form type, then property, then the
// intent phrase, then a generic fallback.
func Title(lead models.LeadInput, property *models.Property) string {
	if title, ok := formTypeTitles[strings.ToLower(strings.TrimSpace(lead.FormType))]; ok {
		return title
	}
	if property != nil {
		code := strings.TrimSpace(property.Code)
		name := strings.TrimSpace(property.Title)
		switch {
		case name != "" && code != "":
			return "Interesse: " + name + " (" + code + ")"
		case code != "":
			return "Interesse no imóvel " + code
		case name != "":
			return "Interesse: " + name
		}
	}
	if code := strings.TrimSpace(lead.PropertyCode); code != "" {
		return "Interesse no imóvel " + code
	}
	if title, ok := intentTitles[lead.Intent.Normalize()]; ok {
		return title
	}
	return GenericTitle
}

// Description returns the free-text body sent with the lead.
func Description(lead models.LeadInput, property *models.Property) string {
	if msg := strings.TrimSpace(lead.Message); msg != "" {
		return msg
	}
	if property != nil && strings.TrimSpace(property.Title) != "" {
		return "Interesse no imóvel: " + strings.TrimSpace(property.Title)
	}
	return "Lead capturado via " + SourceLabel(lead)
}

// SourceLabel renders the channel the lead came from, suffixed by the UTM
// source when one was captured.
func SourceLabel(lead models.LeadInput) string {
	key := strings.ToLower(strings.TrimSpace(lead.Source))
	label, ok := sourceLabels[key]
	if !ok {
		label = sourceLabels["site"]
		if key != "" {
			label = strings.TrimSpace(lead.Source)
		}
	}
	if utm := strings.TrimSpace(lead.UTM.Source); utm != "" && !strings.EqualFold(utm, key) {
		label += " / " + utm
	}
	return label
}

// IdempotencyKey derives a stable identifier for the logical lead so that
// duplicate submissions can be detected.
func (m *Mapper) IdempotencyKey(lead models.LeadInput) string {
	phone, _ := NormalizePhone(lead.Phone, m.countryCode)
	parts := []string{
		util.Slugify(lead.Name),
		SanitizeEmail(lead.Email),
		phone,
		string(lead.Intent.Normalize()),
		strings.ToUpper(strings.TrimSpace(firstNonEmpty(lead.PropertyCode, lead.PropertyID))),
		strings.ToLower(strings.TrimSpace(lead.FormType)),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

func propertyRef(lead models.LeadInput, property *models.Property) string {
	if property != nil && strings.TrimSpace(property.Code) != "" {
		return strings.TrimSpace(property.Code)
	}
	return strings.TrimSpace(firstNonEmpty(lead.PropertyCode, lead.PropertyID))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
