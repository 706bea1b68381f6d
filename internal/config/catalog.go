package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// 價格用整數 (新謝克爾)，避免 yaml 浮點數
type productEntry struct {
	ID          string `yaml:"id"`
	Slug        string `yaml:"slug"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       int64  `yaml:"price"`
	Type        string `yaml:"type"`
	Image       string `yaml:"image"`
	Color       string `yaml:"color"`
}

type tierEntry struct {
	MinCompanionCoverage int    `yaml:"min_companion_coverage"`
	Discount             int64  `yaml:"discount"`
	Label                string `yaml:"label"`
}

type bundleEntry struct {
	PrimaryIDs   []string    `yaml:"primary_ids"`
	CompanionIDs []string    `yaml:"companion_ids"`
	Tiers        []tierEntry `yaml:"tiers"`
}

type catalogFile struct {
	Products []productEntry `yaml:"products"`
	Bundle   bundleEntry    `yaml:"bundle"`
}

type Catalog struct {
	products []model.Product
	byID     map[string]model.Product
	rules    pricing.Rules
}

// LoadCatalog path 為空時使用內建的 catalog
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	cf := &catalogFile{}
	if err := yaml.Unmarshal(data, cf); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{byID: make(map[string]model.Product, len(cf.Products))}
	for _, p := range cf.Products {
		if p.ID == "" || p.Name == "" {
			return nil, fmt.Errorf("catalog product needs id and name: %+v", p)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog product %q", p.ID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog product %q has negative price", p.ID)
		}
		productType := model.ProductType(p.Type)
		if productType != model.ProductTypeBook && productType != model.ProductTypeWorkbook {
			return nil, fmt.Errorf("catalog product %q has unknown type %q", p.ID, p.Type)
		}
		slug := p.Slug
		if slug == "" {
			slug = p.ID
		}
		product := model.Product{
			ID:          p.ID,
			Slug:        slug,
			Name:        p.Name,
			Description: p.Description,
			Price:       decimal.NewFromInt(p.Price),
			Type:        productType,
			Image:       p.Image,
			Color:       p.Color,
		}
		c.products = append(c.products, product)
		c.byID[p.ID] = product
	}

	for _, id := range append(append([]string(nil), cf.Bundle.PrimaryIDs...), cf.Bundle.CompanionIDs...) {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("bundle refers to unknown product %q", id)
		}
	}

	rules := pricing.Rules{
		PrimaryIDs:   cf.Bundle.PrimaryIDs,
		CompanionIDs: cf.Bundle.CompanionIDs,
	}
	for _, t := range cf.Bundle.Tiers {
		rules.Tiers = append(rules.Tiers, pricing.Tier{
			MinCompanionCoverage: t.MinCompanionCoverage,
			Discount:             decimal.NewFromInt(t.Discount),
			Label:                t.Label,
		})
	}
	// 先驗證一次，設定錯誤在啟動時就失敗
	if _, err := pricing.NewEngine(rules); err != nil {
		return nil, fmt.Errorf("catalog bundle rules: %w", err)
	}
	c.rules = rules

	return c, nil
}

func (c *Catalog) Products() []model.Product {
	out := make([]model.Product, len(c.products))
	copy(out, c.products)
	return out
}

func (c *Catalog) Product(id string) (model.Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) Rules() pricing.Rules {
	return c.rules
}
