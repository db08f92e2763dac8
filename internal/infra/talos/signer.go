package talos

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"
)

// timestampLayout is the venue's signing timestamp: UTC, microsecond
// precision with the sub-second part zeroed.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Signer handles Talos API authentication signatures
type Signer struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
}

// NewSigner creates a new Signer instance
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		now:       time.Now,
	}
}

// GenerateHeaders creates the authentication headers for a request.
// host: api host without scheme
// path: /ws/v1, /v1/orders (no host)
// query: OrderID=abc (empty if none)
func (s *Signer) GenerateHeaders(method, host, path, query string) map[string]string {
	timestamp := s.now().UTC().Truncate(time.Second).Format(timestampLayout)

	// Format: method \n timestamp \n host \n path [\n query]
	parts := []string{method, timestamp, host, path}
	if query != "" {
		parts = append(parts, query)
	}
	payload := strings.Join(parts, "\n")

	return map[string]string{
		"TALOS-KEY":  s.apiKey,
		"TALOS-SIGN": computeHmacSha256(payload, s.apiSecret),
		"TALOS-TS":   timestamp,
	}
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}
