package pricing

import "github.com/shopspring/decimal"

const (
	LabelExperts          = "מארז המומחים"
	LabelYoungResearchers = "מארז החוקרים הצעירים"
	LabelBooks            = "מארז הספרים"
)

// DefaultRules 三本書 + 練習本的參考設定，正式環境由 catalog.yaml 提供
func DefaultRules() Rules {
	return Rules{
		PrimaryIDs:   []string{"ai-book", "encryption-book", "algorithms-book"},
		CompanionIDs: []string{"ai-workbook", "encryption-workbook", "algorithms-workbook"},
		Tiers: []Tier{
			{MinCompanionCoverage: 2, Discount: decimal.NewFromInt(115), Label: LabelExperts},
			{MinCompanionCoverage: 1, Discount: decimal.NewFromInt(45), Label: LabelYoungResearchers},
			{MinCompanionCoverage: 0, Discount: decimal.NewFromInt(15), Label: LabelBooks},
		},
	}
}
