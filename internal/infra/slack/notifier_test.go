package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"order_monitor/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_PostMessage(t *testing.T) {
	var gotChannel, gotText, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		gotToken = r.FormValue("token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	n := NewNotifier("xoxb-test", srv.URL+"/")
	require.NoError(t, n.PostMessage(context.Background(), "C1", "*hello*"))

	assert.Equal(t, "C1", gotChannel)
	assert.Equal(t, "*hello*", gotText)
	assert.Equal(t, "xoxb-test", gotToken)
}

func TestNotifier_PostMessageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	n := NewNotifier("xoxb-test", srv.URL+"/")
	err := n.PostMessage(context.Background(), "CX", "hi")
	require.Error(t, err)
	assert.Equal(t, domain.KindDelivery, domain.KindOf(err))
	assert.Contains(t, err.Error(), "channel_not_found")
}
