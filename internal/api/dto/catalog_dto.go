package dto

import (
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/pickup"
)

type ProductsResponse struct {
	Products []model.Product `json:"products"`
}

type PickupPointsResponse struct {
	Cities []string       `json:"cities,omitempty"`
	Points []pickup.Point `json:"points"`
}
