package dashboard

// ComplianceRate is the pass/fail/under-review split, in percent, for one
// screening program.
type ComplianceRate struct {
	Type        string `json:"type"`
	Pass        int    `json:"pass"`
	Fail        int    `json:"fail"`
	UnderReview int    `json:"underReview"`
}

// NewsItem is a regulatory news headline shown in the sidebar.
type NewsItem struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Date    string `json:"date"` // YYYY-MM-DD
	Content string `json:"content"`
}

// Fixed inputs. They are not fetched or refreshed.
var complianceRates = []ComplianceRate{
	{Type: "KYC", Pass: 85, Fail: 10, UnderReview: 5},
	{Type: "AML", Pass: 92, Fail: 6, UnderReview: 2},
	{Type: "Sanctions", Pass: 90, Fail: 8, UnderReview: 2},
	{Type: "OFAC", Pass: 88, Fail: 10, UnderReview: 2},
}

var regulatoryNews = []NewsItem{
	{
		ID:      "NEWS001",
		Title:   "Basel Committee Releases Updated Guidance on Operational Risk",
		Date:    "2023-11-01",
		Content: "The Basel Committee on Banking Supervision has published revisions to its operational risk framework, introducing new requirements for banks to enhance their risk management practices.",
	},
	{
		ID:      "NEWS002",
		Title:   "EU Proposes Stricter Anti-Money Laundering Rules for Crypto Sector",
		Date:    "2023-10-30",
		Content: "The European Commission has unveiled a legislative proposal to subject the cryptocurrency industry to stricter anti-money laundering and counter-terrorist financing rules, aligning it with the financial sector.",
	},
	{
		ID:      "NEWS003",
		Title:   "APAC Regulators Collaborate on Cross-Border Compliance Initiatives",
		Date:    "2023-10-25",
		Content: "Financial regulators from Asia-Pacific countries have announced joint efforts to harmonize regulatory frameworks and enhance cross-border compliance monitoring in the region.",
	},
}

// ComplianceRates returns a copy of the static compliance dataset.
func ComplianceRates() []ComplianceRate {
	out := make([]ComplianceRate, len(complianceRates))
	copy(out, complianceRates)
	return out
}

// RegulatoryNews returns a copy of the static news dataset.
func RegulatoryNews() []NewsItem {
	out := make([]NewsItem, len(regulatoryNews))
	copy(out, regulatoryNews)
	return out
}
