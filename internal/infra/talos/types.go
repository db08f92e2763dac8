package talos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"order_monitor/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	defaultWSPath = "/ws/v1"
	ordersPath    = "/v1/orders"
	pingInterval  = 30 * time.Second
	readTimeout   = 60 * time.Second
	writeTimeout  = 10 * time.Second
	inboxSize     = 256
)

// Stream message types.
const (
	MessageTypeOrder = "Order"
	MessageTypeError = "error"
	MessageTypeHello = "hello"
)

// subscribeRequest Structure
type subscribeRequest struct {
	ReqID   int64          `json:"reqid"`
	Type    string         `json:"type"`
	Streams []streamFilter `json:"streams"`
}

type streamFilter struct {
	Name      string `json:"name"`
	StartDate string `json:"StartDate"`
}

// Envelope is the common shape of every stream message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// OrderRecord is one entry of an Order message's data array. The venue
// sends quantities and prices as strings.
type OrderRecord struct {
	OrderID    string  `json:"OrderID"`
	OrdStatus  string  `json:"OrdStatus"`
	Symbol     string  `json:"Symbol"`
	CumQty     Decimal `json:"CumQty"`
	OrderQty   Decimal `json:"OrderQty"`
	AvgPx      Decimal `json:"AvgPx"`
	AvgPxAllIn Decimal `json:"AvgPxAllIn"`
	LeavesQty  Decimal `json:"LeavesQty"`
	Comments   string  `json:"Comments"`
	Markets    []struct {
		CumQty Decimal `json:"CumQty"`
	} `json:"Markets,omitempty"`
}

// DecodeOrders parses the data array of an Order message.
func DecodeOrders(data json.RawMessage) ([]OrderRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var records []OrderRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode order data: %w", err)
	}
	return records, nil
}

// State converts the record into an observation taken at observedAt.
func (r OrderRecord) State(observedAt time.Time) domain.OrderState {
	return domain.NewOrderState(r.OrderID, r.OrdStatus, r.Symbol,
		r.CumQty.Decimal, r.OrderQty.Decimal, r.LeavesQty.Decimal, r.AvgPx.Decimal,
		r.Comments, observedAt)
}

// Decimal accepts quoted or bare numbers and treats "" and null as zero.
type Decimal struct {
	decimal.Decimal
}

func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" || string(b) == `""` {
		d.Decimal = decimal.Zero
		return nil
	}
	return d.Decimal.UnmarshalJSON(b)
}

// ordersResponse is the REST /v1/orders payload.
type ordersResponse struct {
	Data []OrderRecord `json:"data"`
}
