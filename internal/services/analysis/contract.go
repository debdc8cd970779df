package analysis

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"PowerDesk/internal/domain/models"
	domsvc "PowerDesk/internal/domain/service"
	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/logger"

	"github.com/shopspring/decimal"
)

const maxPenalties = 5

const datePattern = `(?:[A-Z][a-z]+\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}|\d{1,2}(?:st|nd|rd|th)?\s+(?:day\s+of\s+)?[A-Z][a-z]+,?\s+\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4})`

var (
	reSeller      = regexp.MustCompile(`(?im)^\s*(?:seller|generator|producer)\s*:\s*(.+?)\s*$`)
	reBuyer       = regexp.MustCompile(`(?im)^\s*(?:buyer|purchaser|offtaker|off-taker)\s*:\s*(.+?)\s*$`)
	reBetween     = regexp.MustCompile(`(?is)\bbetween\s+(.+?)\s+and\s+(.+?)(?:\.\s|\.$|\n\n|;)`)
	reRoleSuffix  = regexp.MustCompile(`(?i)\s*[,(]\s*(?:hereinafter\s+)?(?:referred\s+to\s+as\s+)?(?:the\s+)?["“']?(seller|buyer|generator|purchaser|producer|offtaker|off-taker)["”']?\s*\)?.*$`)
	reEffective   = regexp.MustCompile(`(?i)effective\s+date[^:\n]{0,40}?(?::|\bis\b|\bof\b|\bon\b)\s*(` + datePattern + `)`)
	reEnteredOn   = regexp.MustCompile(`(?i)(?:entered\s+into|made|dated)\s+(?:on|as\s+of)?\s*(?:this\s+)?(` + datePattern + `)`)
	reEndDate     = regexp.MustCompile(`(?i)(?:end|expiry|expiration)\s+date[^:\n]{0,40}?(?::|\bis\b|\bof\b|\bon\b)\s*(` + datePattern + `)`)
	reUntil       = regexp.MustCompile(`(?i)\b(?:until|through|expires?\s+on)\s+(` + datePattern + `)`)
	reTerm        = regexp.MustCompile(`(?i)(?:term|period|duration)\s+of\s+((?:[a-z-]+\s+)?(?:\(\d+\)\s+)?\d*\s*(?:years?|months?))`)
	reTariff      = regexp.MustCompile(`(?i)(£|\$|€|GBP|USD|EUR|INR|Rs\.?)\s*(\d+(?:\.\d+)?)\s*(?:/|per)\s*(kWh|MWh)`)
	reTariffPence = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:p|pence)\s*(?:/|per)\s*(kWh|MWh)`)
	reNotice      = regexp.MustCompile(`(?i)(\d+|[a-z]+(?:\s*\(\d+\))?)\s*(days?|months?)['’]?\s+(?:prior\s+|advance\s+)?(?:written\s+)?notice`)
	reSentenceEnd = regexp.MustCompile(`[.!?]\s+|\n+`)
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6, "seven": 7,
	"eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12, "fifteen": 15,
	"twenty": 20, "twenty-five": 25, "thirty": 30,
}

var currencyCode = map[string]string{
	"£": "GBP", "$": "USD", "€": "EUR", "gbp": "GBP", "usd": "USD", "eur": "EUR",
	"inr": "INR", "rs": "INR", "rs.": "INR",
}

// RuleExtractor finds PPA terms with regular expressions.
type RuleExtractor struct{}

func (RuleExtractor) Extract(_ context.Context, text string) (models.ContractTerms, error) {
	return ExtractContractTerms(text), nil
}

// ExtractContractTerms pulls parties, dates, term, tariff, penalties,
// termination notice and payment terms from PPA text.
func ExtractContractTerms(text string) models.ContractTerms {
	var c models.ContractTerms

	if m := reSeller.FindStringSubmatch(text); m != nil {
		c.Seller = cleanParty(m[1])
	}
	if m := reBuyer.FindStringSubmatch(text); m != nil {
		c.Buyer = cleanParty(m[1])
	}
	if c.Seller == "" || c.Buyer == "" {
		if m := reBetween.FindStringSubmatch(text); m != nil {
			first, second := cleanParty(m[1]), cleanParty(m[2])
			// a party labelled as buyer first swaps the order
			if strings.Contains(strings.ToLower(m[1]), "buyer") || strings.Contains(strings.ToLower(m[1]), "purchaser") {
				first, second = second, first
			}
			if c.Seller == "" {
				c.Seller = first
			}
			if c.Buyer == "" {
				c.Buyer = second
			}
		}
	}

	if m := reEffective.FindStringSubmatch(text); m != nil {
		c.EffectiveDate = strings.TrimSpace(m[1])
	} else if m := reEnteredOn.FindStringSubmatch(text); m != nil {
		c.EffectiveDate = strings.TrimSpace(m[1])
	}
	if m := reEndDate.FindStringSubmatch(text); m != nil {
		c.EndDate = strings.TrimSpace(m[1])
	} else if m := reUntil.FindStringSubmatch(text); m != nil {
		c.EndDate = strings.TrimSpace(m[1])
	}
	if m := reTerm.FindStringSubmatch(text); m != nil {
		c.Term = strings.Join(strings.Fields(m[1]), " ")
	}
	if c.EndDate == "" && c.EffectiveDate != "" && c.Term != "" {
		if start, ok := ParseContractDate(c.EffectiveDate); ok {
			if end, ok := addTerm(start, c.Term); ok {
				c.EndDate = end.Format("2006-01-02")
			}
		}
	}

	if m := reTariff.FindStringSubmatch(text); m != nil {
		if rate, err := decimal.NewFromString(m[2]); err == nil {
			c.TariffRate = &rate
			c.TariffUnit = currencyCode[strings.ToLower(m[1])] + "/" + m[3]
		}
	} else if m := reTariffPence.FindStringSubmatch(text); m != nil {
		if rate, err := decimal.NewFromString(m[1]); err == nil {
			c.TariffRate = &rate
			c.TariffUnit = "p/" + m[2]
		}
	}

	for _, s := range sentences(text) {
		low := strings.ToLower(s)
		switch {
		case strings.Contains(low, "penalt") || strings.Contains(low, "liquidated damages") || strings.Contains(low, "shortfall"):
			if len(c.Penalties) < maxPenalties {
				c.Penalties = append(c.Penalties, s)
			}
		case c.PaymentTerms == "" && (strings.Contains(low, "invoice") || strings.Contains(low, "payment")) && strings.Contains(low, "days"):
			c.PaymentTerms = s
		}
	}

	if m := reNotice.FindStringSubmatch(text); m != nil {
		if n, ok := termNumber(m[1]); ok {
			c.TerminationNotice = strconv.Itoa(n) + " " + pluralize(strings.ToLower(m[2]), n)
		}
	}
	return c
}

// sentences splits on terminal punctuation followed by space and on line
// breaks, so decimals such as 0.12 stay intact.
func sentences(text string) []string {
	var out []string
	for _, s := range reSentenceEnd.Split(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s == "" {
			continue
		}
		if !strings.HasSuffix(s, ".") {
			s += "."
		}
		out = append(out, s)
	}
	return out
}

func cleanParty(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = reRoleSuffix.ReplaceAllString(s, "")
	return strings.Trim(s, ` ,;:"“”'`)
}

var contractDateLayouts = []string{
	"January 2, 2006", "January 2 2006", "2 January 2006", "2 January, 2006",
	"2006-01-02", "02/01/2006", "2/1/2006",
}

var ordinal = regexp.MustCompile(`(\d)(st|nd|rd|th)`)

// ParseContractDate understands the date styles found in contracts.
// Slash dates are read day first.
func ParseContractDate(s string) (time.Time, bool) {
	s = ordinal.ReplaceAllString(strings.TrimSpace(s), "$1")
	s = strings.Replace(s, " day of ", " ", 1)
	for _, layout := range contractDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func termNumber(s string) (int, bool) {
	if i := strings.Index(s, "("); i >= 0 {
		if j := strings.Index(s[i:], ")"); j > 0 {
			if n, err := strconv.Atoi(s[i+1 : i+j]); err == nil {
				return n, true
			}
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
		return n, true
	}
	n, ok := numberWords[strings.ToLower(strings.TrimSpace(s))]
	return n, ok
}

func addTerm(start time.Time, term string) (time.Time, bool) {
	low := strings.ToLower(term)
	unit := "year"
	if strings.Contains(low, "month") {
		unit = "month"
	}
	idx := strings.Index(low, unit)
	n, ok := termNumber(strings.TrimSpace(low[:idx]))
	if !ok {
		return time.Time{}, false
	}
	if unit == "year" {
		return start.AddDate(n, 0, 0), true
	}
	return start.AddDate(0, n, 0), true
}

func pluralize(unit string, n int) string {
	unit = strings.TrimSuffix(unit, "s")
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// LLMExtractor asks the model for the PPA terms as JSON and fills the gaps
// of the rule-based result with them. Rule-based values win.
type LLMExtractor struct {
	llm   llm.Completer
	rules RuleExtractor
	log   *logger.Logger
}

func NewLLMExtractor(c llm.Completer, log *logger.Logger) *LLMExtractor {
	return &LLMExtractor{llm: c, log: log}
}

type llmTerms struct {
	Seller            string   `json:"seller"`
	Buyer             string   `json:"buyer"`
	EffectiveDate     string   `json:"effective_date"`
	EndDate           string   `json:"end_date"`
	Term              string   `json:"term"`
	TariffRate        string   `json:"tariff_rate"`
	TariffUnit        string   `json:"tariff_unit"`
	Penalties         []string `json:"penalties"`
	TerminationNotice string   `json:"termination_notice"`
	PaymentTerms      string   `json:"payment_terms"`
}

func (e *LLMExtractor) Extract(ctx context.Context, text string) (models.ContractTerms, error) {
	terms, _ := e.rules.Extract(ctx, text)
	out, err := e.llm.Complete(ctx, ContractTermsPrompt(text))
	if err != nil {
		e.log.Warn("llm contract extraction failed, using rules only", logger.Error(err))
		return terms, nil
	}
	got, err := llm.DecodeJSON[llmTerms](out.Text)
	if err != nil {
		e.log.Warn("llm contract extraction returned invalid json", logger.Error(err))
		return terms, nil
	}
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&terms.Seller, got.Seller)
	fill(&terms.Buyer, got.Buyer)
	fill(&terms.EffectiveDate, got.EffectiveDate)
	fill(&terms.EndDate, got.EndDate)
	fill(&terms.Term, got.Term)
	fill(&terms.TerminationNotice, got.TerminationNotice)
	fill(&terms.PaymentTerms, got.PaymentTerms)
	if terms.TariffRate == nil && got.TariffRate != "" {
		if rate, err := decimal.NewFromString(strings.TrimSpace(got.TariffRate)); err == nil {
			terms.TariffRate = &rate
			terms.TariffUnit = got.TariffUnit
		}
	}
	if len(terms.Penalties) == 0 {
		terms.Penalties = got.Penalties
	}
	return terms, nil
}

var (
	_ domsvc.ContractExtractor = RuleExtractor{}
	_ domsvc.ContractExtractor = (*LLMExtractor)(nil)
)
