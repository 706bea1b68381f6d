package handler

import (
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/go-chi/chi/v5"
)

// Catalog config.Catalog 實作
type Catalog interface {
	Products() []model.Product
	Product(id string) (model.Product, bool)
}

type CatalogHandler struct {
	catalog Catalog
}

func NewCatalogHandler(catalog Catalog) *CatalogHandler {
	if catalog == nil {
		panic("catalog cannot be nil")
	}
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	response.SuccessJSON(w, dto.ProductsResponse{Products: h.catalog.Products()})
}

// GetProduct 用 id 或 slug 查
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "productId")
	if p, ok := h.catalog.Product(key); ok {
		response.SuccessJSON(w, p)
		return
	}
	for _, p := range h.catalog.Products() {
		if p.Slug == key {
			response.SuccessJSON(w, p)
			return
		}
	}
	response.JSON(w, http.StatusNotFound, response.ErrorBody{Error: "Product not found"})
}

func lookupProduct(catalog Catalog, id string) (model.Product, error) {
	p, ok := catalog.Product(id)
	if !ok {
		return model.Product{}, apperr.Newf(apperr.InvalidItemCode, "Unknown product %s", id)
	}
	return p, nil
}
