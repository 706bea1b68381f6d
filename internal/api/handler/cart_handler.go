package handler

import (
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/middleware"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/cart"
	"github.com/RoyceAzure/lab/bookstore/internal/pricing"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	carts   *cart.Registry
	catalog Catalog
	engine  *pricing.Engine
}

func NewCartHandler(carts *cart.Registry, catalog Catalog, engine *pricing.Engine) *CartHandler {
	if carts == nil || catalog == nil || engine == nil {
		panic("cart handler dependencies cannot be nil")
	}
	return &CartHandler{carts: carts, catalog: catalog, engine: engine}
}

// 需要先經過 CartSessionMiddleware
func (h *CartHandler) store(r *http.Request) (*cart.Store, error) {
	sessionID, ok := middleware.GetCartSession(r.Context())
	if !ok {
		return nil, apperr.New(apperr.BadRequestCode, "Missing cart session")
	}
	return h.carts.Get(r.Context(), sessionID), nil
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.NewCartResponse(store.Snapshot(), nil))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req dto.AddCartItemRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	product, err := lookupProduct(h.catalog, req.ProductID)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	toast := store.AddItem(product)
	response.SuccessJSON(w, dto.NewCartResponse(store.Snapshot(), &toast))
}

// UpdateQuantity quantity <= 0 等同移除
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateCartItemRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	if req.Quantity == nil {
		response.ErrorJSON(w, r, apperr.New(apperr.MissingFieldsCode, "Missing quantity"))
		return
	}
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	toast, removed := store.UpdateQuantity(chi.URLParam(r, "productId"), *req.Quantity)
	var t *cart.Toast
	if removed {
		t = &toast
	}
	response.SuccessJSON(w, dto.NewCartResponse(store.Snapshot(), t))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	toast, removed := store.RemoveItem(chi.URLParam(r, "productId"))
	var t *cart.Toast
	if removed {
		t = &toast
	}
	response.SuccessJSON(w, dto.NewCartResponse(store.Snapshot(), t))
}

func (h *CartHandler) Undo(w http.ResponseWriter, r *http.Request) {
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	restored := store.Undo(chi.URLParam(r, "toastId"))
	response.SuccessJSON(w, dto.UndoResponse{
		Restored:     restored,
		CartResponse: dto.NewCartResponse(store.Snapshot(), nil),
	})
}

func (h *CartHandler) DismissToast(w http.ResponseWriter, r *http.Request) {
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	store.DismissToast(chi.URLParam(r, "toastId"))
	response.SuccessJSON(w, dto.NewCartResponse(store.Snapshot(), nil))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	store, err := h.store(r)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	store.ClearCart()
	response.SuccessJSON(w, dto.NewCartResponse(store.Snapshot(), nil))
}

// Quote 不動購物車，單純計算一組商品的價格與折扣
func (h *CartHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req dto.QuoteRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	lines := make([]pricing.Line, 0, len(req.Items))
	for _, item := range req.Items {
		product, err := lookupProduct(h.catalog, item.ProductID)
		if err != nil {
			response.ErrorJSON(w, r, err)
			return
		}
		lines = append(lines, pricing.Line{ProductID: product.ID, Price: product.Price, Quantity: item.Quantity})
	}
	response.SuccessJSON(w, cart.TotalsFromQuote(h.engine.Quote(lines)))
}
