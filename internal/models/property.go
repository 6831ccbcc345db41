package models

// Property purposes ("finalidade").
const (
	PurposeSale   = "sale"
	PurposeRent   = "rent"
	PurposeSeason = "season"
)

// Address locates a listing.
type Address struct {
	Street       string `json:"street,omitempty"`
	Number       string `json:"number,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
}

// Property is the listing snapshot used to enrich a lead. It is owned by the
// listing collaborator and only read here.
type Property struct {
	Code        string  `json:"code"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Type        string  `json:"type,omitempty"`
	Purpose     string  `json:"purpose,omitempty"`
	URL         string  `json:"url,omitempty"`
	SalePrice   float64 `json:"salePrice,omitempty"`
	RentPrice   float64 `json:"rentPrice,omitempty"`

	Area      float64 `json:"area,omitempty"`
	Bedrooms  int     `json:"bedrooms,omitempty"`
	Suites    int     `json:"suites,omitempty"`
	Bathrooms int     `json:"bathrooms,omitempty"`
	Parking   int     `json:"parking,omitempty"`

	Address Address `json:"address"`

	// DistanceToBeachMeters is zero when unknown.
	DistanceToBeachMeters float64 `json:"distanceToBeachMeters,omitempty"`

	OceanView   bool `json:"oceanView,omitempty"`
	Furnished   bool `json:"furnished,omitempty"`
	PetFriendly bool `json:"petFriendly,omitempty"`
	IsLaunch    bool `json:"isLaunch,omitempty"`
	IsExclusive bool `json:"isExclusive,omitempty"`
}

// Price returns the price relevant to the property's purpose.
func (p *Property) Price() float64 {
	if p == nil {
		return 0
	}
	switch p.Purpose {
	case PurposeRent, PurposeSeason:
		if p.RentPrice > 0 {
			return p.RentPrice
		}
	}
	if p.SalePrice > 0 {
		return p.SalePrice
	}
	return p.RentPrice
}

// Clone returns a copy of p, or nil.
func (p *Property) Clone() *Property {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}
