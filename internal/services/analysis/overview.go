package analysis

import "PowerDesk/internal/domain/models"

// Area describes one assistant view.
type Area struct {
	Kind        models.AnalysisKind  `json:"kind"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Requires    []models.DatasetKind `json:"requires,omitempty"`
}

const OverviewText = "This Energy Trader Assistant supports smarter, data-driven trading using GenAI. " +
	"Functional areas include Market Summary, Forecast Deviation, Regulatory Advisory, Trade Logs, " +
	"Contract Clause Analysis, Price Forecast, Emerging Risks, and Trading Strategy."

// Areas lists the views in display order with the uploads each one needs.
var Areas = []Area{
	{models.AnalysisMarket, "Market Summary", "Live regional prices and volumes with trend commentary.", nil},
	{models.AnalysisDeviation, "Forecast Deviation", "Forecast against actual generation with imbalance cost.", []models.DatasetKind{models.KindForecast, models.KindActual}},
	{models.AnalysisRegulation, "Regulatory Advisory", "Digest of regulatory bulletins and their trading impact.", []models.DatasetKind{models.KindRegulation}},
	{models.AnalysisTrades, "Trade Logs", "Price bands, volumes and missed opportunities from past trades.", []models.DatasetKind{models.KindTrades}},
	{models.AnalysisContract, "Contract Clause Analysis", "PPA terms and key clauses.", []models.DatasetKind{models.KindContract}},
	{models.AnalysisForecast, "Price Forecast", "30-day price outlook with trading recommendations.", nil},
	{models.AnalysisRisks, "Emerging Risks", "Regional warning signals from market prices.", nil},
	{models.AnalysisStrategy, "Trading Strategy", "Next-day strategy from every dataset in the session.", nil},
}

// AreaFor returns the area for kind.
func AreaFor(kind models.AnalysisKind) (Area, bool) {
	for _, a := range Areas {
		if a.Kind == kind {
			return a, true
		}
	}
	return Area{}, false
}
