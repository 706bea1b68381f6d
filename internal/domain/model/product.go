package model

import "github.com/shopspring/decimal"

type ProductType string

const (
	ProductTypeBook     ProductType = "book"
	ProductTypeWorkbook ProductType = "workbook"
)

// Product 商品資料來自 catalog 設定檔，執行期間不會變動
type Product struct {
	ID          string          `json:"id"`
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Type        ProductType     `json:"type"`
	Image       string          `json:"image,omitempty"`
	Color       string          `json:"color,omitempty"`
}
