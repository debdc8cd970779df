package analysis

import (
	"fmt"
	"strings"

	"PowerDesk/internal/domain/models"
	"PowerDesk/pkg/document"
	"PowerDesk/pkg/llm"
	"PowerDesk/pkg/tabular"
)

// Completion budgets per view.
const (
	MarketTokens     = 350
	DeviationTokens  = 400
	RegulationTokens = 400
	TradesTokens     = 400
	ContractTokens   = 500
	ForecastTokens   = 500
	RisksTokens      = 500
	StrategyTokens   = 1000
)

const (
	contractPromptChars   = 3000
	contractStrategyChars = 1000
	strategyRows          = 10
	previewRows           = 10
	strategyMarketRows    = 6
)

const systemPrompt = "You are an AI assistant for electricity traders. Be concise, quantitative and specific to the regions in the data."

func MarketPrompt(t *tabular.Table, summary MarketSummary, live bool) llm.Request {
	var b strings.Builder
	if live {
		b.WriteString("Analyze the electricity market summary for price trends and volume shifts.")
	} else {
		b.WriteString("Analyze this simulated electricity market summary.")
	}
	b.WriteString(" Include MCP trends, congestion or price signals, volume spikes or drops and zone-wise highlights.\n\n")
	if live {
		b.WriteString(t.Head(previewRows).Markdown())
	} else {
		b.WriteString(t.Head(previewRows).Text())
	}
	if len(summary.Regions) > 0 {
		fmt.Fprintf(&b, "\nAverage price %.4f, spread %.4f, total volume %.1f MWh.\n", summary.AvgPrice, summary.Spread, summary.TotalVolume)
		for _, r := range summary.Regions {
			if r.ShiftFlagged {
				fmt.Fprintf(&b, "- %s volume is %+.1f%% against the regional mean\n", r.Region, r.VolumeShift)
			}
		}
	}
	return llm.Request{System: systemPrompt, Prompt: b.String(), MaxTokens: MarketTokens}
}

func DeviationPrompt(rep *DeviationReport) llm.Request {
	var b strings.Builder
	b.WriteString("You are a power system analyst. Compare forecasted and actual generation below. ")
	b.WriteString("Identify notable mismatches by date and region. Suggest likely causes such as weather uncertainty, transmission limits or curtailment. ")
	b.WriteString("Recommend actions to improve forecasting or reduce deviation charges.\n\n")
	b.WriteString(rep.Table.Head(previewRows).Markdown())
	fmt.Fprintf(&b, "\n%d of %d rows deviate by at least %.1f%%. Estimated imbalance cost %s GBP at %.2f GBP/MWh over %.1fh settlement periods.\n",
		rep.Notable, len(rep.Rows), rep.ThresholdPct, rep.TotalImbalanceCost.StringFixed(2), rep.ImbalancePrice, rep.SettlementHours)
	return llm.Request{System: systemPrompt, Prompt: b.String(), MaxTokens: DeviationTokens}
}

func RegulationPrompt(d RegulationDigest) llm.Request {
	var prompt string
	if len(d.Bulletins) > 0 {
		prompt = "You are an energy regulation advisor. Summarize these latest regulatory bulletins and explain their impact on trading decisions.\n\n" + d.Text
	} else {
		prompt = "Review regulatory data and highlight trading constraints.\n\n" + d.Text
	}
	return llm.Request{System: systemPrompt, Prompt: prompt, MaxTokens: RegulationTokens}
}

func TradesPrompt(t *tabular.Table, stats models.TradeStats) llm.Request {
	var b strings.Builder
	b.WriteString("You are an energy trading advisor. From the trade log below identify typical buy and sell price ranges, volumes and regions. ")
	b.WriteString("Recommend favorable price bands, highlight missed opportunities and suggest buy or sell actions with price, quantity and region.\n\n")
	b.WriteString(t.Head(previewRows).Markdown())
	if len(stats.BySide) > 0 {
		b.WriteString("\nComputed statistics:\n")
		for _, s := range stats.BySide {
			fmt.Fprintf(&b, "- %s %s: %d trades, %s to %s (avg %s), %.1f MWh\n",
				s.Region, s.Side, s.Count, s.MinPrice.String(), s.MaxPrice.String(), s.AvgPrice.String(), s.TotalVolume)
		}
		for i, m := range stats.Missed {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "- missed: %s %s at %s, %s (gap %s)\n",
				m.Trade.Side, m.Trade.Region, m.Trade.Price.String(), m.Reason, m.Gap.String())
		}
	}
	return llm.Request{System: systemPrompt, Prompt: b.String(), MaxTokens: TradesTokens}
}

func ContractPrompt(text string) llm.Request {
	prompt := "You are a legal and energy trading expert. Read the following power purchase agreement.\n\n" +
		document.Excerpt(text, contractPromptChars) +
		"\n\nSummarize key clauses: contract duration, termination rules, payment terms, scheduling obligations, penalty or curtailment clauses. " +
		"Highlight restrictions that affect trading and give recommendations. Provide a readable summary."
	return llm.Request{System: systemPrompt, Prompt: prompt, MaxTokens: ContractTokens}
}

// ContractTermsPrompt asks for the PPA terms as a JSON object.
func ContractTermsPrompt(text string) llm.Request {
	prompt := "Extract the terms of this power purchase agreement as a single JSON object with the keys " +
		`"seller", "buyer", "effective_date", "end_date", "term", "tariff_rate", "tariff_unit", "penalties" (array of strings), ` +
		`"termination_notice" and "payment_terms". Use empty strings for anything not stated. Return only JSON.` +
		"\n\n" + document.Excerpt(text, contractPromptChars)
	return llm.Request{System: "You extract structured data from contracts.", Prompt: prompt, MaxTokens: ContractTokens}
}

func ForecastPrompt(t *tabular.Table) llm.Request {
	prompt := "Based on this 30-day price forecast, recommend trading decisions: when to buy, when to sell and which price levels to watch.\n\n" + t.Markdown()
	if n := t.Len(); n != 30 {
		prompt = strings.Replace(prompt, "30-day", fmt.Sprintf("%d-day", n), 1)
	}
	return llm.Request{System: systemPrompt, Prompt: prompt, MaxTokens: ForecastTokens}
}

func RisksPrompt(t *tabular.Table, live bool) llm.Request {
	var prompt string
	if live {
		prompt = "Analyze real-time electricity market data for emerging risks and recommend mitigation strategies.\n\n" + t.Head(previewRows).Markdown()
	} else {
		prompt = "Analyze fallback risk signals and recommend strategies.\n\n" + t.Text()
	}
	return llm.Request{System: systemPrompt, Prompt: prompt, MaxTokens: RisksTokens}
}

// StrategyInput carries whatever datasets a session has. Nil tables and an
// empty contract are left out of the prompt.
type StrategyInput struct {
	Forecast *tabular.Table
	Actual   *tabular.Table
	Trades   *tabular.Table
	Market   *tabular.Table
	Contract string
}

// Sections lists the names of the sections present.
func (in StrategyInput) Sections() []string {
	var out []string
	for _, s := range in.sections() {
		out = append(out, s.name)
	}
	return out
}

type section struct {
	name string
	body string
}

func (in StrategyInput) sections() []section {
	rows := strategyRows
	if in.Market != nil {
		rows = strategyMarketRows
	}
	var out []section
	add := func(name string, t *tabular.Table) {
		if t != nil && t.Len() > 0 {
			out = append(out, section{name, t.Head(rows).Markdown()})
		}
	}
	add("FORECAST", in.Forecast)
	add("ACTUAL", in.Actual)
	add("MARKET", in.Market)
	add("TRADE LOG", in.Trades)
	if c := strings.TrimSpace(in.Contract); c != "" {
		out = append(out, section{"CONTRACT", document.Excerpt(c, contractStrategyChars)})
	}
	return out
}

func StrategyPrompt(in StrategyInput) llm.Request {
	var b strings.Builder
	b.WriteString("You are an AI energy trading strategist. Based on the following data, recommend a specific trading strategy for the next day by region:\n")
	b.WriteString("- what to buy or sell and how much\n- preferred price bands and load levels\n- timing for action and scheduling advice\n- contractual, regulatory or market risks\n")
	for _, s := range in.sections() {
		fmt.Fprintf(&b, "\n%s:\n%s", s.name, s.body)
	}
	return llm.Request{System: systemPrompt, Prompt: b.String(), MaxTokens: StrategyTokens}
}
