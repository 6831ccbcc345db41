package tags

import (
	"strings"
	"time"

	"github.com/example/c2s-leadsync/internal/models"
	"github.com/example/c2s-leadsync/internal/util"
)

// Price brackets, in BRL.
const (
	SaleHighThreshold   = 1_500_000
	SaleMediumThreshold = 600_000
	RentHighThreshold   = 8_000
	RentMediumThreshold = 3_000
)

// Beach proximity thresholds, in meters.
const (
	BeachFrontMeters = 100
	BeachBlockMeters = 300
	NearBeachMeters  = 1000
)

const (
	businessOpenHour  = 8
	businessCloseHour = 18
	largeAreaM2       = 200
)

// Behavioral tags.
const (
	TagBusinessHours  = "horario-comercial"
	TagUrgent         = "urgente"
	TagWeekendEngaged = "fim-de-semana-engajado"
)

var intentTags = map[models.Intent]string{
	models.IntentBuy:      "intencao:compra",
	models.IntentSell:     "intencao:venda",
	models.IntentRent:     "intencao:locacao",
	models.IntentEvaluate: "intencao:avaliacao",
	models.IntentInfo:     "intencao:informacao",
}

var purposeTags = map[string]string{
	models.PurposeSale:   "finalidade:venda",
	models.PurposeRent:   "finalidade:locacao",
	models.PurposeSeason: "finalidade:temporada",
}

func prefixed(prefix, value string) string {
	slug := util.Slugify(value)
	if slug == "" {
		return ""
	}
	return prefix + slug
}

// OriginRules tags the capture channel and campaign attribution.
func OriginRules(in Input) []string {
	lead := in.Lead
	out := []string{
		prefixed("origem:", lead.Source),
		prefixed("utm:", lead.UTM.Source),
		prefixed("midia:", lead.UTM.Medium),
		prefixed("campanha:", lead.UTM.Campaign),
	}
	if ft := prefixed("formulario:", lead.FormType); ft != "" {
		out = append(out, ft)
	}
	return out
}

// IntentRules tags what the prospect wants to do. IntentOther yields nothing.
func IntentRules(in Input) []string {
	if tag, ok := intentTags[in.Lead.Intent.Normalize()]; ok {
		return []string{tag}
	}
	return nil
}

// BehavioralRules tags when the lead arrived: inside business hours, or
// outside them (urgent), plus weekend engagement.
func BehavioralRules(in Input) []string {
	if in.Now.IsZero() {
		return nil
	}
	var out []string
	weekend := in.Now.Weekday() == time.Saturday || in.Now.Weekday() == time.Sunday
	hour := in.Now.Hour()
	if !weekend && hour >= businessOpenHour && hour < businessCloseHour {
		out = append(out, TagBusinessHours)
	} else {
		out = append(out, TagUrgent)
	}
	if weekend {
		out = append(out, TagWeekendEngaged)
	}
	if in.Lead.Consent.WhatsApp {
		out = append(out, "aceita-whatsapp")
	}
	return out
}

// ValueRules places the property price, or the lead's budget when no
// property is linked, in a bracket.
func ValueRules(in Input) []string {
	var (
		price float64
		rent  bool
	)
	if p := in.Property; p != nil {
		price = p.Price()
		rent = (p.Purpose == models.PurposeRent || p.Purpose == models.PurposeSeason) && p.RentPrice > 0
		if p.Purpose == "" && p.SalePrice == 0 && p.RentPrice > 0 {
			rent = true
		}
	} else {
		price = in.Lead.Preferences.BudgetMax
		if price == 0 {
			price = in.Lead.Preferences.BudgetMin
		}
		rent = in.Lead.Intent.Normalize() == models.IntentRent
	}
	if price <= 0 {
		return nil
	}
	return []string{valueBracket(price, rent)}
}

func valueBracket(price float64, rent bool) string {
	high, medium := float64(SaleHighThreshold), float64(SaleMediumThreshold)
	if rent {
		high, medium = RentHighThreshold, RentMediumThreshold
	}
	switch {
	case price >= high:
		return "valor:alto"
	case price >= medium:
		return "valor:medio"
	default:
		return "valor:entrada"
	}
}

// PropertyTypeRules tags the listing type, falling back to the desired type.
func PropertyTypeRules(in Input) []string {
	kind := in.Lead.Preferences.PropertyType
	if in.Property != nil && strings.TrimSpace(in.Property.Type) != "" {
		kind = in.Property.Type
	}
	return []string{prefixed("tipo:", kind)}
}

// PurposeRules tags the listing finalidade.
func PurposeRules(in Input) []string {
	if in.Property == nil {
		return nil
	}
	purpose := strings.ToLower(strings.TrimSpace(in.Property.Purpose))
	return []string{purposeTags[purpose]}
}

// LocationRules tags the neighborhood, the city and proximity to the beach.
func LocationRules(in Input) []string {
	if in.Property == nil {
		return []string{prefixed("bairro:", in.Lead.Preferences.Neighborhood)}
	}
	p := in.Property
	out := []string{
		prefixed("bairro:", p.Address.Neighborhood),
		prefixed("cidade:", p.Address.City),
	}
	switch d := p.DistanceToBeachMeters; {
	case d <= 0:
	case d <= BeachFrontMeters:
		out = append(out, "frente-mar")
	case d <= BeachBlockMeters:
		out = append(out, "quadra-mar")
	case d <= NearBeachMeters:
		out = append(out, "proximo-praia")
	}
	return out
}

// FeatureRules tags listing highlights.
func FeatureRules(in Input) []string {
	p := in.Property
	if p == nil {
		return nil
	}
	var out []string
	if p.IsLaunch {
		out = append(out, "lancamento")
	}
	if p.IsExclusive {
		out = append(out, "exclusivo")
	}
	if p.OceanView {
		out = append(out, "vista-mar")
	}
	if p.Furnished {
		out = append(out, "mobiliado")
	}
	if p.PetFriendly {
		out = append(out, "pet-friendly")
	}
	if p.Suites >= 2 {
		out = append(out, "multi-suites")
	}
	if p.Area >= largeAreaM2 {
		out = append(out, "amplo")
	}
	return out
}
