// Package pickup fetches the courier's pickup-point directory (an XML spot list) and
// keeps the points that accept parcel deliveries.
package pickup

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/encoding/charmap"
)

const (
	DefaultURL = "https://chita-il.com/RunCom.Server/WsSpotsList.aspx?PRGNAME=ws_spotslist&ARGUMENTS=-Aall"
	CacheKey   = "pickup:points"
)

var ErrUpstream = errors.New("failed to fetch pickup points")

type Point struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	City      string `json:"city"`
	Street    string `json:"street"`
	House     string `json:"house"`
	Remarks   string `json:"remarks"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type Client struct {
	url        string
	httpClient *http.Client
	cache      Cache
	ttl        time.Duration
	logger     zerolog.Logger
}

func NewClient(url string, timeout time.Duration, cache Cache, ttl time.Duration, logger zerolog.Logger) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		ttl:        ttl,
		logger:     logger,
	}
}

// List 先讀快取，快取失敗只記 log 不影響回應
func (c *Client) List(ctx context.Context) ([]Point, error) {
	if c.cache != nil {
		var cached []Point
		found, err := c.cache.GetJSON(ctx, CacheKey, &cached)
		if err != nil {
			c.logger.Warn().Err(err).Msg("read pickup cache failed")
		} else if found {
			return cached, nil
		}
	}

	points, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.SetJSON(ctx, CacheKey, points, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("write pickup cache failed")
		}
	}
	return points, nil
}

func (c *Client) fetch(ctx context.Context) ([]Point, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	points, err := Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return points, nil
}

type spotDetail struct {
	Code      string `xml:"n_code"`
	Name      string `xml:"name"`
	City      string `xml:"city"`
	Street    string `xml:"street"`
	House     string `xml:"house"`
	Remarks   string `xml:"remarks"`
	Latitude  string `xml:"latitude"`
	Longitude string `xml:"longitude"`
	Mesirot   string `xml:"mesirot_yn"`
}

/*
Parse 逐一讀取 spot_detail
只保留 mesirot_yn == "y" 且 code、name、city 都有值的點
*/
func Parse(r io.Reader) ([]Point, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader

	points := []Point{}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse pickup xml: %w", err)
		}

		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "spot_detail" {
			continue
		}
		var spot spotDetail
		if err := dec.DecodeElement(&spot, &start); err != nil {
			return nil, fmt.Errorf("parse spot_detail: %w", err)
		}

		if strings.TrimSpace(spot.Mesirot) != "y" {
			continue
		}
		p := Point{
			Code:      strings.TrimSpace(spot.Code),
			Name:      strings.TrimSpace(spot.Name),
			City:      strings.TrimSpace(spot.City),
			Street:    strings.TrimSpace(spot.Street),
			House:     strings.TrimSpace(spot.House),
			Remarks:   strings.TrimSpace(spot.Remarks),
			Latitude:  strings.TrimSpace(spot.Latitude),
			Longitude: strings.TrimSpace(spot.Longitude),
		}
		if p.Code == "" || p.Name == "" || p.City == "" {
			continue
		}
		points = append(points, p)
	}
}

// 舊系統常見 windows-1255，其他編碼照原樣讀
func charsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "windows-1255", "cp1255":
		return charmap.Windows1255.NewDecoder().Reader(input), nil
	case "iso-8859-8":
		return charmap.ISO8859_8.NewDecoder().Reader(input), nil
	default:
		return input, nil
	}
}

func FilterByCity(points []Point, city string) []Point {
	city = strings.ToLower(strings.TrimSpace(city))
	out := []Point{}
	for _, p := range points {
		if strings.Contains(strings.ToLower(p.City), city) {
			out = append(out, p)
		}
	}
	return out
}

// Cities 不重複並排序，前端自動完成用
func Cities(points []Point) []string {
	seen := make(map[string]struct{}, len(points))
	cities := []string{}
	for _, p := range points {
		if _, ok := seen[p.City]; ok {
			continue
		}
		seen[p.City] = struct{}{}
		cities = append(cities, p.City)
	}
	sort.Strings(cities)
	return cities
}
