package mapper

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/example/c2s-leadsync/internal/models"
)

var brl = message.NewPrinter(language.BrazilianPortuguese)

var purposeLabels = map[string]string{
	models.PurposeSale:   "Venda",
	models.PurposeRent:   "Locação",
	models.PurposeSeason: "Temporada",
}

var contactPreferenceLabels = map[string]string{
	"whatsapp": "WhatsApp",
	"phone":    "Telefone",
	"email":    "E-mail",
	"any":      "Qualquer canal",
}

// section accumulates "label: value" lines and renders nothing when empty.
type section struct {
	title string
	lines []string
}

func (s *section) add(label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	s.lines = append(s.lines, label+": "+value)
}

func (s *section) addRaw(line string) {
	if strings.TrimSpace(line) != "" {
		s.lines = append(s.lines, line)
	}
}

func (s *section) render(b *strings.Builder) {
	if len(s.lines) == 0 {
		return
	}
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("[" + s.title + "]")
	for _, line := range s.lines {
		b.WriteString("\n" + line)
	}
}

// BuildLeadDetailsMessage renders the section-labelled note attached to a
// CRM lead after creation. Property details are used when a property is
// linked; otherwise the lead's own preferences are described. Fields are
// included only when present.
func BuildLeadDetailsMessage(lead models.LeadInput, property *models.Property) string {
	var b strings.Builder

	if property != nil {
		interest := propertySection(property)
		interest.render(&b)
	} else {
		prefs := preferencesSection(lead)
		prefs.render(&b)
	}

	msg := section{title: "Mensagem"}
	msg.addRaw(strings.TrimSpace(lead.Message))
	msg.render(&b)

	contact := section{title: "Contato"}
	contact.add("Nome", strings.Join(strings.Fields(lead.Name), " "))
	contact.add("E-mail", SanitizeEmail(lead.Email))
	contact.add("Telefone", strings.TrimSpace(lead.Phone))
	if pref := strings.ToLower(strings.TrimSpace(lead.Preferences.ContactPreference)); pref != "" {
		label, ok := contactPreferenceLabels[pref]
		if !ok {
			label = lead.Preferences.ContactPreference
		}
		contact.add("Preferência de contato", label)
	}
	contact.add("Melhor horário", lead.Preferences.BestTimeToContact)
	if lead.Consent.WhatsApp {
		contact.addRaw("Aceita contato por WhatsApp")
	}
	if lead.Consent.Marketing {
		contact.addRaw("Aceita receber comunicações de marketing")
	}
	contact.render(&b)

	origin := section{title: "Origem"}
	origin.add("Canal", SourceLabel(lead))
	origin.add("Formulário", lead.FormType)
	origin.add("Campanha", joinNonEmpty(" / ", lead.UTM.Source, lead.UTM.Medium, lead.UTM.Campaign))
	origin.add("Termo", lead.UTM.Term)
	origin.add("Conteúdo", lead.UTM.Content)
	origin.render(&b)

	return b.String()
}

func propertySection(p *models.Property) section {
	s := section{title: "Interesse"}
	s.add("Imóvel", joinNonEmpty(" - ", p.Code, p.Title))
	s.add("Tipo", p.Type)
	s.add("Finalidade", purposeLabels[p.Purpose])
	if p.SalePrice > 0 {
		s.add("Valor de venda", formatBRL(p.SalePrice))
	}
	if p.RentPrice > 0 {
		s.add("Valor de locação", formatBRL(p.RentPrice))
	}

	var specs []string
	if p.Area > 0 {
		specs = append(specs, brl.Sprintf("Área: %.0f m²", p.Area))
	}
	specs = appendCount(specs, "Quartos", p.Bedrooms)
	specs = appendCount(specs, "Suítes", p.Suites)
	specs = appendCount(specs, "Banheiros", p.Bathrooms)
	specs = appendCount(specs, "Vagas", p.Parking)
	s.addRaw(strings.Join(specs, " | "))

	s.add("Endereço", formatAddress(p.Address))

	var features []string
	if p.OceanView {
		features = append(features, "vista para o mar")
	}
	if p.Furnished {
		features = append(features, "mobiliado")
	}
	if p.PetFriendly {
		features = append(features, "aceita pets")
	}
	if p.IsLaunch {
		features = append(features, "lançamento")
	}
	if p.IsExclusive {
		features = append(features, "exclusividade")
	}
	s.add("Destaques", strings.Join(features, ", "))
	s.add("Link", p.URL)
	return s
}

func preferencesSection(lead models.LeadInput) section {
	prefs := lead.Preferences
	s := section{title: "Preferências"}
	s.add("Código do imóvel", firstNonEmpty(lead.PropertyCode, lead.PropertyID))
	switch {
	case prefs.BudgetMin > 0 && prefs.BudgetMax > 0:
		s.add("Orçamento", formatBRL(prefs.BudgetMin)+" a "+formatBRL(prefs.BudgetMax))
	case prefs.BudgetMax > 0:
		s.add("Orçamento", "até "+formatBRL(prefs.BudgetMax))
	case prefs.BudgetMin > 0:
		s.add("Orçamento", "a partir de "+formatBRL(prefs.BudgetMin))
	}
	s.add("Tipo", prefs.PropertyType)
	if prefs.Bedrooms > 0 {
		s.add("Quartos", fmt.Sprintf("%d", prefs.Bedrooms))
	}
	s.add("Características", strings.Join(trimAll(prefs.Features), ", "))
	s.add("Bairro", prefs.Neighborhood)
	s.add("Endereço", prefs.Address)
	return s
}

func formatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}

func formatAddress(a models.Address) string {
	street := joinNonEmpty(", ", a.Street, a.Number)
	city := joinNonEmpty("/", a.City, a.State)
	return joinNonEmpty(" - ", street, a.Neighborhood, city)
}

func appendCount(specs []string, label string, n int) []string {
	if n <= 0 {
		return specs
	}
	return append(specs, fmt.Sprintf("%s: %d", label, n))
}

func joinNonEmpty(sep string, values ...string) string {
	return strings.Join(trimAll(values), sep)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
