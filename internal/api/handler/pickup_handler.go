package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/pickup"
)

type PickupLister interface {
	List(ctx context.Context) ([]pickup.Point, error)
}

type PickupHandler struct {
	pickup PickupLister
}

func NewPickupHandler(lister PickupLister) *PickupHandler {
	if lister == nil {
		panic("pickup lister cannot be nil")
	}
	return &PickupHandler{pickup: lister}
}

// ListPoints 有 city 時只回符合的點，沒有時另外回城市清單
func (h *PickupHandler) ListPoints(w http.ResponseWriter, r *http.Request) {
	points, err := h.pickup.List(r.Context())
	if err != nil {
		response.ErrorJSON(w, r, apperr.Wrap(apperr.PickupUnavailableCode, err))
		return
	}

	if city := strings.TrimSpace(r.URL.Query().Get("city")); city != "" {
		response.SuccessJSON(w, dto.PickupPointsResponse{Points: pickup.FilterByCity(points, city)})
		return
	}
	response.SuccessJSON(w, dto.PickupPointsResponse{
		Cities: pickup.Cities(points),
		Points: points,
	})
}
