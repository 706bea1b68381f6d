package analytics

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RoyceAzure/lab/bookstore/internal/domain/model"
)

const (
	DefaultCAPIURL = "https://graph.facebook.com/v21.0"
	defaultTimeout = 10 * time.Second

	eventPurchase = "Purchase"
	countryIL     = "il"
)

var ErrNotConfigured = errors.New("conversions api is not configured")

// CAPIClient 付款完成後把 Purchase 事件送到 Meta Conversions API
// 個資一律 sha256(小寫、去空白) 後才送出
type CAPIClient struct {
	baseURL     string
	pixelID     string
	accessToken string
	sourceURL   string
	httpClient  *http.Client
	now         func() time.Time
}

func NewCAPIClient(baseURL, pixelID, accessToken, sourceURL string, timeout time.Duration) *CAPIClient {
	if baseURL == "" {
		baseURL = DefaultCAPIURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &CAPIClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		pixelID:     pixelID,
		accessToken: accessToken,
		sourceURL:   sourceURL,
		httpClient:  &http.Client{Timeout: timeout},
		now:         time.Now,
	}
}

type capiRequest struct {
	Data        []capiEvent `json:"data"`
	AccessToken string      `json:"access_token"`
}

type capiEvent struct {
	EventName      string            `json:"event_name"`
	EventTime      int64             `json:"event_time"`
	EventID        string            `json:"event_id"`
	EventSourceURL string            `json:"event_source_url,omitempty"`
	ActionSource   string            `json:"action_source"`
	UserData       map[string]string `json:"user_data"`
	CustomData     capiCustomData    `json:"custom_data"`
}

type capiCustomData struct {
	Value       float64                 `json:"value"`
	Currency    string                  `json:"currency"`
	ContentIDs  []string                `json:"content_ids"`
	Contents    []model.PurchaseContent `json:"contents"`
	ContentType string                  `json:"content_type"`
	NumItems    int                     `json:"num_items"`
}

type capiResponse struct {
	EventsReceived int `json:"events_received"`
	Error          *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *CAPIClient) Configured() bool {
	return c.pixelID != "" && c.accessToken != ""
}

func (c *CAPIClient) SendPurchase(ctx context.Context, event model.PurchaseEvent) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	eventTime := event.OccurredAt
	if eventTime.IsZero() {
		eventTime = c.now()
	}

	payload := capiRequest{
		Data: []capiEvent{{
			EventName:      eventPurchase,
			EventTime:      eventTime.Unix(),
			EventID:        event.EventID,
			EventSourceURL: c.sourceURL,
			ActionSource:   "website",
			UserData:       HashUserData(event.User),
			CustomData: capiCustomData{
				Value:       event.Value.InexactFloat64(),
				Currency:    event.Currency,
				ContentIDs:  event.ContentIDs(),
				Contents:    event.Contents,
				ContentType: "product",
				NumItems:    event.NumItems,
			},
		}},
		AccessToken: c.accessToken,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode purchase event: %w", err)
	}

	url := fmt.Sprintf("%s/%s/events", c.baseURL, c.pixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send purchase event: %w", err)
	}
	defer resp.Body.Close()

	var result capiResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &result)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(raw))
		if result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		return fmt.Errorf("conversions api status %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// HashUserData 空值不送
func HashUserData(u model.PurchaseUser) map[string]string {
	data := map[string]string{
		"country": Hash(countryIL),
	}
	if u.Email != "" {
		data["em"] = Hash(u.Email)
	}
	if u.Phone != "" {
		data["ph"] = Hash(NormalizePhone(u.Phone))
	}
	if u.FirstName != "" {
		data["fn"] = Hash(u.FirstName)
	}
	if u.LastName != "" {
		data["ln"] = Hash(u.LastName)
	}
	if u.City != "" {
		data["ct"] = Hash(u.City)
	}
	return data
}

func Hash(value string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return hex.EncodeToString(sum[:])
}

// NormalizePhone 只留數字，0 開頭的本地號碼換成 972
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "0") {
		return "972" + digits[1:]
	}
	return digits
}
