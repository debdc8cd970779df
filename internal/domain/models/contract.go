package models

import "github.com/shopspring/decimal"

// ContractTerms are the fields pulled from a PPA. Any field may be empty
// when the text does not state it.
type ContractTerms struct {
	Seller            string           `json:"seller,omitempty"`
	Buyer             string           `json:"buyer,omitempty"`
	EffectiveDate     string           `json:"effective_date,omitempty"`
	EndDate           string           `json:"end_date,omitempty"`
	Term              string           `json:"term,omitempty"`
	TariffRate        *decimal.Decimal `json:"tariff_rate,omitempty"`
	TariffUnit        string           `json:"tariff_unit,omitempty"`
	Penalties         []string         `json:"penalties,omitempty"`
	TerminationNotice string           `json:"termination_notice,omitempty"`
	PaymentTerms      string           `json:"payment_terms,omitempty"`
}

// Empty reports whether nothing was extracted.
func (c ContractTerms) Empty() bool {
	return c.Seller == "" && c.Buyer == "" && c.EffectiveDate == "" && c.EndDate == "" &&
		c.Term == "" && c.TariffRate == nil && len(c.Penalties) == 0 &&
		c.TerminationNotice == "" && c.PaymentTerms == ""
}
