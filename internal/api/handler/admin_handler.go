package handler

import (
	"net/http"

	"github.com/RoyceAzure/lab/bookstore/internal/api/dto"
	"github.com/RoyceAzure/lab/bookstore/internal/api/middleware"
	"github.com/RoyceAzure/lab/bookstore/internal/api/response"
	"github.com/RoyceAzure/lab/bookstore/internal/constants"
	"github.com/RoyceAzure/lab/bookstore/internal/service"
)

type AdminHandler struct {
	adminService service.IAdminService
	// 非開發環境 cookie 加 Secure
	secureCookie bool
}

func NewAdminHandler(adminService service.IAdminService, secureCookie bool) *AdminHandler {
	if adminService == nil {
		panic("adminService cannot be nil")
	}
	return &AdminHandler{adminService: adminService, secureCookie: secureCookie}
}

// Login POST /admin/auth
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.AdminLoginRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	token, err := h.adminService.Login(r.Context(), req.Password)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	h.setSessionCookie(w, token, int(constants.AdminSessionTTL.Seconds()))
	response.SuccessJSON(w, dto.AdminAuthResponse{Success: true, Authenticated: true})
}

// Status GET /admin/auth，沒登入不算錯誤
func (h *AdminHandler) Status(w http.ResponseWriter, r *http.Request) {
	ok, err := h.adminService.IsAuthenticated(r.Context(), middleware.AdminToken(r))
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.AdminAuthResponse{Authenticated: ok})
}

// Logout DELETE /admin/auth
func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.adminService.Logout(r.Context(), middleware.AdminToken(r)); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	h.setSessionCookie(w, "", -1)
	response.SuccessJSON(w, dto.SuccessResponse{Success: true})
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.adminService.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.OrdersResponse{Orders: orders})
}

func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateOrderStatusRequest
	if err := response.DecodeJSON(r, &req); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}

	order, err := h.adminService.UpdateOrderStatus(r.Context(), req.OrderID, req.Status)
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.UpdateOrderStatusResponse{Success: true, Order: order})
}

// DeleteOrder DELETE /admin/orders?id=
func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.adminService.DeleteOrder(r.Context(), r.URL.Query().Get("id")); err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.SuccessResponse{Success: true})
}

func (h *AdminHandler) GatewayCheck(w http.ResponseWriter, r *http.Request) {
	result, err := h.adminService.GatewayCheck(r.Context())
	if err != nil {
		response.ErrorJSON(w, r, err)
		return
	}
	response.SuccessJSON(w, dto.GatewayCheckResponse{Success: true, PayPages: result.PayPages})
}

func (h *AdminHandler) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     constants.AdminSessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
