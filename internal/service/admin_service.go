package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/apperr"
	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/gateway"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/bookstore/internal/infra/repository/redis_repo"
	"github.com/rs/zerolog"
)

const sessionTokenBytes = 32

type GatewayCheckResult struct {
	PayPages []gateway.PayPage `json:"paypages"`
}

type IAdminService interface {
	Login(ctx context.Context, password string) (string, error)
	IsAuthenticated(ctx context.Context, token string) (bool, error)
	Logout(ctx context.Context, token string) error
	ListOrders(ctx context.Context, status string) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (*model.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	GatewayCheck(ctx context.Context) (*GatewayCheckResult, error)
}

// AdminService 後台只有一組共用密碼，登入後發 session token 存在 redis
type AdminService struct {
	password   string
	sessions   redis_repo.IAdminSessionRepository
	orderRepo  db.IOrderRepository
	gateway    PaymentGateway
	sessionTTL time.Duration
	logger     zerolog.Logger
}

func NewAdminService(password string, sessions redis_repo.IAdminSessionRepository, orderRepo db.IOrderRepository, gw PaymentGateway, sessionTTL time.Duration, logger zerolog.Logger) *AdminService {
	return &AdminService{
		password:   password,
		sessions:   sessions,
		orderRepo:  orderRepo,
		gateway:    gw,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

var _ IAdminService = (*AdminService)(nil)

// Login 密碼沒設定時一律拒絕
func (a *AdminService) Login(ctx context.Context, password string) (string, error) {
	if a.password == "" || !passwordMatches(password, a.password) {
		a.logger.Warn().Msg("admin login rejected")
		return "", apperr.ErrUnauthenticated
	}

	token, err := newSessionToken()
	if err != nil {
		return "", apperr.Wrap(apperr.InternalErrorCode, err)
	}
	if err := a.sessions.CreateSession(ctx, token, a.sessionTTL); err != nil {
		a.logger.Error().Err(err).Msg("failed to create admin session")
		return "", apperr.Wrap(apperr.PersistenceCode, err)
	}
	return token, nil
}

func (a *AdminService) IsAuthenticated(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ok, err := a.sessions.SessionExists(ctx, token)
	if err != nil {
		return false, apperr.Wrap(apperr.PersistenceCode, err)
	}
	return ok, nil
}

func (a *AdminService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return apperr.Wrap(apperr.PersistenceCode, err)
	}
	return nil
}

// ListOrders status 空字串代表全部
func (a *AdminService) ListOrders(ctx context.Context, status string) ([]model.Order, error) {
	var filter *model.OrderStatus
	if strings.TrimSpace(status) != "" {
		parsed, err := model.ParseOrderStatus(status)
		if err != nil {
			return nil, apperr.ErrInvalidStatus
		}
		filter = &parsed
	}

	orders, err := a.orderRepo.GetAllOrders(ctx, filter)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to list orders")
		return nil, apperr.Wrap(apperr.PersistenceCode, err)
	}
	return orders, nil
}

// UpdateOrderStatus 後台可以設定任何合法狀態
func (a *AdminService) UpdateOrderStatus(ctx context.Context, orderID, status string) (*model.Order, error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(status) == "" {
		return nil, apperr.New(apperr.MissingFieldsCode, "Missing orderId or status")
	}
	to, err := model.ParseOrderStatus(status)
	if err != nil {
		return nil, apperr.ErrInvalidStatus
	}

	order, err := a.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, a.mapRepoErr(err)
	}
	if !model.CanTransition(order.Status, to, model.ActorAdmin) {
		return nil, apperr.ErrInvalidStatus
	}

	if err := a.orderRepo.UpdateOrderStatus(ctx, orderID, to); err != nil {
		return nil, a.mapRepoErr(err)
	}
	a.logger.Info().
		Str("order_id", orderID).
		Str("from", order.Status.String()).
		Str("to", to.String()).
		Msg("order status changed by admin")

	order.Status = to
	return order, nil
}

func (a *AdminService) DeleteOrder(ctx context.Context, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return apperr.New(apperr.MissingFieldsCode, "Missing order id")
	}
	if err := a.orderRepo.HardDeleteOrder(ctx, orderID); err != nil {
		return a.mapRepoErr(err)
	}
	a.logger.Info().Str("order_id", orderID).Msg("order deleted by admin")
	return nil
}

// GatewayCheck 登入金流並列出付款頁，確認設定正確
func (a *AdminService) GatewayCheck(ctx context.Context) (*GatewayCheckResult, error) {
	pages, err := a.gateway.PayPageList(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("gateway check failed")
		return nil, gatewayError(err)
	}
	return &GatewayCheckResult{PayPages: pages}, nil
}

func (a *AdminService) mapRepoErr(err error) error {
	if errors.Is(err, db.ErrOrderNotFound) {
		return apperr.ErrOrderNotFound
	}
	a.logger.Error().Err(err).Msg("admin order operation failed")
	return apperr.Wrap(apperr.PersistenceCode, err)
}

// 先 hash 成固定長度再比對，長度不同也不會提早結束
func passwordMatches(given, expected string) bool {
	g := sha256.Sum256([]byte(given))
	e := sha256.Sum256([]byte(expected))
	return subtle.ConstantTimeCompare(g[:], e[:]) == 1
}

func newSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
