package response

import (
	"encoding/json"
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/rs/zerolog"
)

type ErrorBody struct {
	Error   string `json:"error"`
	OrderID string `json:"orderId,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func SuccessJSON(w http.ResponseWriter, v interface{}) {
	JSON(w, http.StatusOK, v)
}

/*
ErrorJSON 依錯誤碼決定 status code
5xx 的錯誤完整內容只寫進 log，回給 client 的是固定訊息
*/
func ErrorJSON(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("request rejected")
	}

	JSON(w, status, ErrorBody{
		Error:   apperr.PublicMessage(err),
		OrderID: apperr.OrderIDOf(err),
	})
}

// DecodeJSON body 解析失敗回 BadRequest
func DecodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperr.New(apperr.BadRequestCode, "Empty request body")
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.New(apperr.BadRequestCode, "Invalid JSON body")
	}
	return nil
}
