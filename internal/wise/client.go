package wise

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAPIBase is the production Wise API.
const DefaultAPIBase = "https://api.transferwise.com"

var (
	// ErrNotConfigured is returned when the API token or profile id is missing.
	ErrNotConfigured = errors.New("wise: API credentials not configured")

	// ErrUpstream wraps non-2xx responses from the Wise API.
	ErrUpstream = errors.New("wise: API request failed")
)

// Balance is one currency balance on the profile.
type Balance struct {
	ID       FlexibleID      `json:"id"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type balanceResponse struct {
	ID       FlexibleID  `json:"id"`
	Currency string      `json:"currency"`
	Amount   struct {
		Value    decimal.Decimal `json:"value"`
		Currency string          `json:"currency"`
	} `json:"amount"`
}

// Client talks to the Wise REST API.
type Client struct {
	baseURL    string
	token      string
	profileID  string
	httpClient *http.Client
}

// NewClient creates a Client. An empty baseURL uses DefaultAPIBase.
func NewClient(baseURL, token, profileID string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		profileID:  profileID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c.token != "" && c.profileID != ""
}

// Balances fetches the STANDARD balances of the profile.
func (c *Client) Balances(ctx context.Context) ([]Balance, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/v4/profiles/%s/balances?types=STANDARD", c.baseURL, url.PathEscape(c.profileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("Balances: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Balances: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw []balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("Balances: decoding response: %w", err)
	}

	balances := make([]Balance, 0, len(raw))
	for _, b := range raw {
		currency := b.Currency
		if currency == "" {
			currency = b.Amount.Currency
		}
		balances = append(balances, Balance{ID: b.ID, Currency: currency, Amount: b.Amount.Value})
	}
	return balances, nil
}
