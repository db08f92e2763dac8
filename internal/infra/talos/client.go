package talos

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"order_monitor/internal/domain"
)

// Client is the Talos REST API client (Boundary Layer)
type Client struct {
	host       string
	baseURL    string // overridable for testing; defaults to https://host
	httpClient *http.Client
	signer     *Signer
	logger     *slog.Logger
}

// NewClient creates a new REST client for host (no scheme).
func NewClient(host string, signer *Signer) *Client {
	return &Client{
		host:    host,
		baseURL: "https://" + host,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		signer: signer,
		logger: slog.Default().With("module", "talos_client"),
	}
}

// FetchOrder returns the execution status of one order, or nil when the
// venue does not know it.
func (c *Client) FetchOrder(ctx context.Context, orderID string) (*domain.ExecutionStatus, error) {
	query := url.Values{"OrderID": {orderID}}.Encode()

	resp, err := c.doRequest(ctx, http.MethodGet, ordersPath, query)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "fetch order", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.KindTransport, "fetch order", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.NewError(domain.KindAuth, "fetch order", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewError(domain.KindTransport, "fetch order", fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}

	var apiResp ordersResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, domain.NewError(domain.KindParse, "fetch order", err)
	}
	if len(apiResp.Data) == 0 {
		return nil, nil
	}

	status := ExecutionStatusFromRecord(apiResp.Data[0])
	if status.OrderID == "" {
		status.OrderID = orderID
	}
	return &status, nil
}

// ExecutionStatusFromRecord summarises an order record.
func ExecutionStatusFromRecord(r OrderRecord) domain.ExecutionStatus {
	allIn := r.AvgPxAllIn.Decimal
	if allIn.IsZero() {
		allIn = r.AvgPx.Decimal
	}
	symbol := r.Symbol
	if symbol == "" {
		symbol = "UNKNOWN"
	}
	status := r.OrdStatus
	if status == "" {
		status = domain.OrderStatusUnknown
	}

	filled := 0
	for _, m := range r.Markets {
		if m.CumQty.IsPositive() {
			filled++
		}
	}

	return domain.ExecutionStatus{
		OrderID:       r.OrderID,
		Symbol:        symbol,
		CumQty:        r.CumQty.Decimal,
		OrderQty:      r.OrderQty.Decimal,
		LeavesQty:     r.LeavesQty.Decimal,
		AvgPx:         r.AvgPx.Decimal,
		AvgPxAllIn:    allIn,
		FillPct:       domain.FillPercentage(r.CumQty.Decimal, r.OrderQty.Decimal).Round(2),
		Status:        status,
		FilledMarkets: filled,
	}
}

// doRequest handles Auth headers
func (c *Client) doRequest(ctx context.Context, method, path, query string) (*http.Response, error) {
	reqURL := c.baseURL + path
	if query != "" {
		reqURL += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}

	for k, v := range c.signer.GenerateHeaders(method, c.host, path, query) {
		req.Header.Set(k, v)
	}

	return c.httpClient.Do(req)
}
