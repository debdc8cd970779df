package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePPA = `POWER PURCHASE AGREEMENT

This Agreement is made on 1 January 2024 between Sunfield Solar Ltd (the "Seller") and GridCo Energy plc (the "Buyer").
The Effective Date is January 1, 2024.
The agreement shall remain in force for a term of ten (10) years.
The Buyer shall pay a tariff of £0.12 per kWh for all delivered energy.
Invoices are payable within 30 days of receipt.
If delivered energy falls below 90% of contracted volume, a shortfall penalty of £0.02 per kWh applies.
Either party may terminate with ninety (90) days written notice.
`

func TestExtractContractTerms(t *testing.T) {
	c := ExtractContractTerms(samplePPA)

	assert.Equal(t, "Sunfield Solar Ltd", c.Seller)
	assert.Equal(t, "GridCo Energy plc", c.Buyer)
	assert.Equal(t, "January 1, 2024", c.EffectiveDate)
	assert.Equal(t, "ten (10) years", c.Term)
	assert.Equal(t, "2034-01-01", c.EndDate, "end date derived from the term")
	require.NotNil(t, c.TariffRate)
	assert.Equal(t, "0.12", c.TariffRate.String())
	assert.Equal(t, "GBP/kWh", c.TariffUnit)
	assert.Equal(t, []string{"If delivered energy falls below 90% of contracted volume, a shortfall penalty of £0.02 per kWh applies."}, c.Penalties)
	assert.Equal(t, "90 days", c.TerminationNotice)
	assert.Equal(t, "Invoices are payable within 30 days of receipt.", c.PaymentTerms)
	assert.False(t, c.Empty())
}

func TestExtractContractTermsLabelledParties(t *testing.T) {
	text := "Seller: Windy Hill Energy\nBuyer: Metro Power\nThis agreement expires on 31 December 2030.\nPrice: 45.50 p/MWh"
	c := ExtractContractTerms(text)
	assert.Equal(t, "Windy Hill Energy", c.Seller)
	assert.Equal(t, "Metro Power", c.Buyer)
	assert.Equal(t, "31 December 2030", c.EndDate)
	require.NotNil(t, c.TariffRate)
	assert.Equal(t, "45.5", c.TariffRate.String())
	assert.Equal(t, "p/MWh", c.TariffUnit)
}

func TestExtractContractTermsNothingFound(t *testing.T) {
	assert.True(t, ExtractContractTerms("hello world").Empty())
}

func TestParseContractDate(t *testing.T) {
	for _, s := range []string{"March 3, 2025", "3rd March 2025", "3 March, 2025", "2025-03-03", "03/03/2025", "3rd day of March 2025"} {
		d, ok := ParseContractDate(s)
		require.True(t, ok, s)
		assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), d, s)
	}
	_, ok := ParseContractDate("soon")
	assert.False(t, ok)
}

func TestLLMExtractorFillsGaps(t *testing.T) {
	completer := llm.CompleterFunc(func(_ context.Context, req llm.Request) (llm.Completion, error) {
		assert.Contains(t, req.Prompt, "JSON")
		return llm.Completion{Text: "```json\n{\"seller\":\"Other\",\"buyer\":\"Metro Power\",\"tariff_rate\":\"0.09\",\"tariff_unit\":\"GBP/kWh\"}\n```"}, nil
	})
	e := NewLLMExtractor(completer, logger.NewNop())

	c, err := e.Extract(context.Background(), "Seller: Windy Hill Energy\nThe parties agree.")
	require.NoError(t, err)
	assert.Equal(t, "Windy Hill Energy", c.Seller, "rule result wins")
	assert.Equal(t, "Metro Power", c.Buyer)
	require.NotNil(t, c.TariffRate)
	assert.Equal(t, "0.09", c.TariffRate.String())
}

func TestLLMExtractorFallsBackToRules(t *testing.T) {
	failing := llm.CompleterFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{}, errors.New("boom")
	})
	c, err := NewLLMExtractor(failing, logger.NewNop()).Extract(context.Background(), samplePPA)
	require.NoError(t, err)
	assert.Equal(t, "Sunfield Solar Ltd", c.Seller)
}
