package talos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"order_monitor/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server) *Client {
	c := NewClient("tal.example.com", NewSigner("key", "secret"))
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	return c
}

func TestClient_FetchOrder(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("TALOS-KEY")
		_, _ = w.Write([]byte(`{"data":[{
			"OrderID":"A1","Symbol":"FLR-USD","OrdStatus":"PartiallyFilled",
			"CumQty":"7000000","OrderQty":"10000000","LeavesQty":"3000000",
			"AvgPx":"0.0227","AvgPxAllIn":"",
			"Markets":[{"CumQty":"1"},{"CumQty":"0"},{"CumQty":"2"}]
		}]}`))
	}))
	defer srv.Close()

	status, err := newTestClient(srv).FetchOrder(context.Background(), "A1")
	require.NoError(t, err)
	require.NotNil(t, status)

	assert.Equal(t, "OrderID=A1", gotQuery)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "FLR-USD", status.Symbol)
	assert.True(t, status.FillPct.Equal(decimal.NewFromInt(70)))
	assert.True(t, status.AvgPxAllIn.Equal(decimal.RequireFromString("0.0227")), "all-in price falls back to avg price")
	assert.Equal(t, 2, status.FilledMarkets)
	assert.False(t, status.IsComplete())
}

func TestClient_FetchOrderNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer srv.Close()

	status, err := newTestClient(srv).FetchOrder(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestClient_FetchOrderErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
		kind domain.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, "nope", domain.KindAuth},
		{"server error", http.StatusInternalServerError, "boom", domain.KindTransport},
		{"bad json", http.StatusOK, "{", domain.KindParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).FetchOrder(context.Background(), "A1")
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestDecodeOrders(t *testing.T) {
	records, err := DecodeOrders(json.RawMessage(`[
		{"OrderID":"A1","OrdStatus":"New","CumQty":"0","OrderQty":100,"AvgPx":null,"LeavesQty":"100"}
	]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].OrderQty.Equal(decimal.NewFromInt(100)))
	assert.True(t, records[0].AvgPx.IsZero())

	_, err = DecodeOrders(json.RawMessage(`{"not":"an array"}`))
	assert.Error(t, err)

	records, err = DecodeOrders(nil)
	assert.NoError(t, err)
	assert.Empty(t, records)
}
