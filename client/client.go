package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Status is the ledger summary served by a running sniper.
type Status struct {
	Budget           float64 `json:"budget"`
	OpenPositions    int     `json:"open_positions"`
	MaxPositions     int     `json:"max_positions"`
	DetectorActive   *bool   `json:"detector_active,omitempty"`
	PersistenceOK    bool    `json:"persistence_ok"`
	PersistenceError string  `json:"persistence_error,omitempty"`
}

// Position is an open simulated holding.
type Position struct {
	Mint        string    `json:"mint"`
	PoolID      string    `json:"pool_id"`
	BuyPrice    float64   `json:"buy_price"`
	BuyTime     time.Time `json:"buy_time"`
	TokenAmount float64   `json:"token_amount"`
	PeakPrice   float64   `json:"peak_price"`
	SolCost     float64   `json:"sol_cost"`
}

// Trade is a closed position.
type Trade struct {
	ID string `json:"id"`
	Position
	SellPrice   float64   `json:"sell_price"`
	SolProceeds float64   `json:"sol_proceeds"`
	Reason      string    `json:"exit_reason"`
	SellTime    time.Time `json:"sell_time"`
	ProfitLoss  float64   `json:"profit_loss"`
}

// TradeFilter narrows a trade listing. Zero fields are not sent.
type TradeFilter struct {
	Mint   string
	Reason string
	Since  time.Time
	Limit  int
}

// TradeStats aggregates realized results.
type TradeStats struct {
	Count     int            `json:"count"`
	Wins      int            `json:"wins"`
	Losses    int            `json:"losses"`
	TotalPnL  float64        `json:"total_pnl"`
	TotalCost float64        `json:"total_cost"`
	ByReason  map[string]int `json:"by_reason"`
	WinRate   float64        `json:"-"`
	ROI       float64        `json:"-"`
}

// ErrUnhealthy is returned by Health when the server reports degraded persistence.
type ErrUnhealthy struct {
	StatusCode int
	Message    string
}

func (e *ErrUnhealthy) Error() string {
	return fmt.Sprintf("unhealthy (%d): %s", e.StatusCode, e.Message)
}

// Client is the HTTP client for the poolsniper operational API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new poolsniper API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &ErrUnhealthy{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil
}

// Status retrieves budget, occupancy and persistence state.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.getJSON(ctx, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Positions retrieves the open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var response struct {
		Positions []Position `json:"positions"`
	}
	if err := c.getJSON(ctx, "/api/v1/positions", nil, &response); err != nil {
		return nil, err
	}
	return response.Positions, nil
}

// Trades retrieves completed trades, newest first.
func (c *Client) Trades(ctx context.Context, filter TradeFilter) ([]Trade, error) {
	query := url.Values{}
	if filter.Mint != "" {
		query.Set("mint", filter.Mint)
	}
	if filter.Reason != "" {
		query.Set("reason", filter.Reason)
	}
	if !filter.Since.IsZero() {
		query.Set("since", filter.Since.UTC().Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	var response struct {
		Trades []Trade `json:"trades"`
	}
	if err := c.getJSON(ctx, "/api/v1/trades", query, &response); err != nil {
		return nil, err
	}
	return response.Trades, nil
}

// TradeStats retrieves aggregate realized results.
func (c *Client) TradeStats(ctx context.Context) (*TradeStats, error) {
	var response struct {
		Stats   TradeStats `json:"stats"`
		WinRate float64    `json:"win_rate"`
		ROI     float64    `json:"roi"`
	}
	if err := c.getJSON(ctx, "/api/v1/trades/stats", nil, &response); err != nil {
		return nil, err
	}
	stats := response.Stats
	stats.WinRate = response.WinRate
	stats.ROI = response.ROI
	return &stats, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	c.logger.Debug("request complete", "path", path)
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
