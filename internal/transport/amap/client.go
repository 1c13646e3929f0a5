package amap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MARYCOMPLEX/food-agent/internal/domain"
	"github.com/MARYCOMPLEX/food-agent/internal/metrics"
)

const (
	defaultBaseURL = "https://restapi.amap.com/v3"
	defaultTimeout = 10 * time.Second

	// Restaurant POI type code.
	diningTypes = "050000"
)

// Config holds the map provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client is the POI provider over the AMap place-search API. A shop the
// provider does not know yields (nil, nil); only transport or API failures
// are errors.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a POI client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Lookup finds the best-matching POI for a shop name, trying progressively
// looser name variants before giving up.
func (c *Client) Lookup(ctx context.Context, name, cityHint string) (*domain.POIRecord, error) {
	for _, v := range searchVariants(name, cityHint) {
		poi, err := c.searchOne(ctx, v.keyword, v.city)
		if err != nil {
			metrics.POIRequestsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("%w: lookup %q: %w", domain.ErrEnrichUnavailable, name, err)
		}
		if poi != nil {
			metrics.POIRequestsTotal.WithLabelValues("success").Inc()
			return poi, nil
		}
	}
	metrics.POIRequestsTotal.WithLabelValues("miss").Inc()
	return nil, nil
}

func (c *Client) searchOne(ctx context.Context, keyword, city string) (*domain.POIRecord, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("keywords", keyword)
	q.Set("types", diningTypes)
	q.Set("offset", "1")
	q.Set("extensions", "all")
	if city != "" {
		q.Set("city", city)
		q.Set("citylimit", "true")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/place/text?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("place search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("place search: status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Status string `json:"status"`
		Info   string `json:"info"`
		POIs   []struct {
			Name     string `json:"name"`
			Address  string `json:"address"`
			CityName string `json:"cityname"`
			AdName   string `json:"adname"`
			Tel      string `json:"tel"`
			BizExt   struct {
				Rating string `json:"rating"`
			} `json:"biz_ext"`
			Photos []struct {
				URL string `json:"url"`
			} `json:"photos"`
		} `json:"pois"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode place response: %w", err)
	}
	if parsed.Status != "1" {
		return nil, fmt.Errorf("place search: API failed: %s", parsed.Info)
	}
	if len(parsed.POIs) == 0 {
		return nil, nil
	}

	poi := parsed.POIs[0]
	rec := &domain.POIRecord{
		Address: joinAddress(poi.AdName, poi.Address),
		Phone:   poi.Tel,
		Rating:  poi.BizExt.Rating,
		City:    poi.CityName,
	}
	for _, p := range poi.Photos {
		if p.URL != "" {
			rec.Photos = append(rec.Photos, p.URL)
		}
	}
	return rec, nil
}

func joinAddress(district, address string) string {
	if district != "" && !strings.HasPrefix(address, district) {
		return district + address
	}
	return address
}

type variant struct {
	keyword string
	city    string
}

var branchSuffixRe = regexp.MustCompile(`[(（][^)）]*[店分部号馆][)）]$`)

// searchVariants generates name variants from most to least specific:
// exact name with city, city prefix stripped, branch suffix stripped,
// and finally an unconstrained search.
func searchVariants(name, city string) []variant {
	variants := []variant{{name, city}}
	seen := map[string]bool{name: true}

	add := func(keyword, city string) {
		if keyword != "" && !seen[keyword] {
			seen[keyword] = true
			variants = append(variants, variant{keyword, city})
		}
	}

	if city != "" {
		add(strings.TrimPrefix(name, city), city)
	}
	add(stripBranchSuffix(name), city)
	if city != "" {
		variants = append(variants, variant{name, ""})
	}
	return variants
}

func stripBranchSuffix(name string) string {
	clean := branchSuffixRe.ReplaceAllString(name, "")
	return strings.TrimSpace(clean)
}
