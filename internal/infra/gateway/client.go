// Package gateway talks to the iCount payment API: session login, hosted payment page
// generation and pay-page diagnostics. Every failure is classified into a Kind so the
// caller can decide between "retry later" and "fix the request".
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.icount.co.il/api/v3.php"
	DefaultTimeout = 10 * time.Second

	docTypeInvoiceReceipt = "invrec"
	maxErrorBody          = 4 << 10
)

type Credentials struct {
	CID  string
	User string
	Pass string
}

func (c Credentials) complete() bool {
	return c.CID != "" && c.User != "" && c.Pass != ""
}

type Client struct {
	baseURL    string
	creds      Credentials
	paypageID  string
	httpClient *http.Client
}

func NewClient(baseURL string, creds Credentials, paypageID string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		creds:      creds,
		paypageID:  paypageID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type LineItem struct {
	Description string
	UnitPrice   decimal.Decimal
	Quantity    int
}

// 金流要的是數字，decimal 預設會序列化成字串
type wireItem struct {
	Description string  `json:"description"`
	UnitPrice   float64 `json:"unitprice"`
	Quantity    int     `json:"quantity"`
}

func toWireItems(items []LineItem) []wireItem {
	out := make([]wireItem, 0, len(items))
	for _, it := range items {
		out = append(out, wireItem{
			Description: it.Description,
			UnitPrice:   it.UnitPrice.InexactFloat64(),
			Quantity:    it.Quantity,
		})
	}
	return out
}

type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
	City    string
}

type PaymentRequest struct {
	OrderID    string
	Customer   Customer
	Items      []LineItem
	Currency   string
	Lang       string
	SuccessURL string
	FailureURL string
	IPNURL     string
}

// PaymentPage 正規化後的付款頁資訊
type PaymentPage struct {
	RedirectURL   string
	CorrelationID string
}

type PayPage struct {
	ID   string `json:"paypage_id"`
	Name string `json:"page_name"`
}

type baseResponse struct {
	Status           bool   `json:"status"`
	Reason           string `json:"reason"`
	ErrorDescription string `json:"error_description"`
}

func (r baseResponse) message() string {
	if r.ErrorDescription != "" {
		return r.ErrorDescription
	}
	return r.Reason
}

type loginRequest struct {
	CID  string `json:"cid"`
	User string `json:"user"`
	Pass string `json:"pass"`
}

type loginResponse struct {
	baseResponse
	SID string `json:"sid"`
}

type generateSaleRequest struct {
	SID          string     `json:"sid"`
	PaypageID    string     `json:"paypage_id,omitempty"`
	DocType      string     `json:"doctype"`
	Items        []wireItem `json:"items"`
	ClientName   string     `json:"client_name"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	Address      string     `json:"client_address,omitempty"`
	City         string     `json:"client_city,omitempty"`
	CurrencyCode string     `json:"currency_code"`
	SendEmail    bool       `json:"send_email"`
	SuccessURL   string     `json:"success_url"`
	FailureURL   string     `json:"failure_url"`
	IPNURL       string     `json:"ipn_url"`
	Custom       string     `json:"custom"`
	Lang         string     `json:"lang"`
}

type generateSaleResponse struct {
	baseResponse
	SaleURL    string `json:"sale_url"`
	SaleUniqID string `json:"sale_uniqid"`
}

type payPageListResponse struct {
	baseResponse
	PayPages []PayPage `json:"paypages"`
}

/*
Login 取得 session id
帳密缺少或 status:false -> KindAuth
連線失敗 -> KindUnavailable
*/
func (c *Client) Login(ctx context.Context) (string, error) {
	const op = "login"
	if !c.creds.complete() {
		return "", &GatewayError{Kind: KindAuth, Op: op, Msg: "missing credentials"}
	}

	var resp loginResponse
	if err := c.post(ctx, op, "/auth/login", loginRequest{
		CID:  c.creds.CID,
		User: c.creds.User,
		Pass: c.creds.Pass,
	}, &resp); err != nil {
		return "", err
	}
	if !resp.Status || resp.SID == "" {
		msg := resp.message()
		if msg == "" {
			msg = "login failed"
		}
		return "", &GatewayError{Kind: KindAuth, Op: op, Msg: msg}
	}
	return resp.SID, nil
}

// CreatePaymentURL 建立付款頁，回傳轉址網址與 sale_uniqid
func (c *Client) CreatePaymentURL(ctx context.Context, req PaymentRequest) (*PaymentPage, error) {
	const op = "generate_sale"

	sid, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "ILS"
	}
	lang := req.Lang
	if lang == "" {
		lang = "he"
	}

	var resp generateSaleResponse
	if err := c.post(ctx, op, "/paypage/generate_sale", generateSaleRequest{
		SID:          sid,
		PaypageID:    c.paypageID,
		DocType:      docTypeInvoiceReceipt,
		Items:        toWireItems(req.Items),
		ClientName:   req.Customer.Name,
		Email:        req.Customer.Email,
		Phone:        req.Customer.Phone,
		Address:      req.Customer.Address,
		City:         req.Customer.City,
		CurrencyCode: currency,
		SendEmail:    true,
		SuccessURL:   req.SuccessURL,
		FailureURL:   req.FailureURL,
		IPNURL:       req.IPNURL,
		Custom:       req.OrderID,
		Lang:         lang,
	}, &resp); err != nil {
		return nil, err
	}

	if !resp.Status {
		msg := resp.message()
		if msg == "" {
			msg = "payment page request rejected"
		}
		return nil, &GatewayError{Kind: KindRejected, Op: op, Msg: msg}
	}
	if resp.SaleURL == "" {
		return nil, &GatewayError{Kind: KindUnavailable, Op: op, Msg: "response without sale_url"}
	}

	return &PaymentPage{
		RedirectURL:   resp.SaleURL,
		CorrelationID: resp.SaleUniqID,
	}, nil
}

// PayPageList 後台檢查金流設定用
func (c *Client) PayPageList(ctx context.Context) ([]PayPage, error) {
	const op = "paypage_list"

	sid, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}

	var resp payPageListResponse
	if err := c.post(ctx, op, "/paypage/get_list", map[string]string{"sid": sid}, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, &GatewayError{Kind: KindRejected, Op: op, Msg: resp.message()}
	}
	return resp.PayPages, nil
}

func (c *Client) post(ctx context.Context, op, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return &GatewayError{Kind: KindRejected, Op: op, Msg: "encode request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &GatewayError{Kind: KindUnavailable, Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &GatewayError{Kind: KindUnavailable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &GatewayError{
			Kind: KindUnavailable,
			Op:   op,
			Msg:  fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Kind: KindUnavailable, Op: op, Msg: fmt.Sprintf("decode response (status %d)", resp.StatusCode), Err: err}
	}
	return nil
}
