package cart

import (
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/shopspring/decimal"
)

// Entry 加入購物車當下的商品快照
type Entry struct {
	ProductID string          `json:"productId"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     string          `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
}

func newEntry(p model.Product) Entry {
	return Entry{
		ProductID: p.ID,
		Slug:      p.Slug,
		Name:      p.Name,
		Price:     p.Price,
		Image:     p.Image,
		Quantity:  1,
	}
}

type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"bundleDiscount"`
	BundleName *string         `json:"bundleName"`
	HasBundle  bool            `json:"hasBundle"`
	Total      decimal.Decimal `json:"total"`
	ItemCount  int             `json:"itemCount"`
}

func TotalsFromQuote(q pricing.Quote) Totals {
	return Totals{
		Subtotal:   q.Subtotal,
		Discount:   q.Discount,
		BundleName: q.Label,
		HasBundle:  q.HasBundle,
		Total:      q.Total,
		ItemCount:  q.ItemCount,
	}
}

func toLines(entries []Entry) []pricing.Line {
	lines := make([]pricing.Line, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, pricing.Line{ProductID: e.ProductID, Price: e.Price, Quantity: e.Quantity})
	}
	return lines
}
