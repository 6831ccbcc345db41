package crm

// LeadPayload is the CRM wire representation of a lead. It is built fresh
// for every submission and never persisted by the engine.
type LeadPayload struct {
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Title       string   `json:"product,omitempty"`
	Description string   `json:"description,omitempty"`
	Source      string   `json:"source,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	PropertyRef string   `json:"prop_ref,omitempty"`
	SellerID    string   `json:"seller_id,omitempty"`
	CompanyID   string   `json:"company_id,omitempty"`
}
