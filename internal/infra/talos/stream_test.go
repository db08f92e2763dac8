package talos

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsServer struct {
	*httptest.Server
	headers chan http.Header
	subs    chan subscribeRequest
	send    chan string
	drop    chan struct{}
	once    sync.Once
}

func (s *wsServer) disconnect() {
	s.once.Do(func() { close(s.drop) })
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		headers: make(chan http.Header, 1),
		subs:    make(chan subscribeRequest, 1),
		send:    make(chan string, 8),
		drop:    make(chan struct{}),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.headers <- r.Header.Clone()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeRequest
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		s.subs <- sub

		for {
			select {
			case msg := <-s.send:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					return
				}
			case <-s.drop:
				return
			}
		}
	}))
	t.Cleanup(func() {
		s.disconnect()
		s.Close()
	})
	return s
}

func newTestStream(srv *wsServer) *Stream {
	st := NewStream("tal.example.com", "/ws/v1", NewSigner("key", "secret"), infra.NewMetrics())
	st.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1"
	return st
}

func TestStream_ConnectSubscribeReceive(t *testing.T) {
	srv := newWSServer(t)
	st := newTestStream(srv)
	ctx := context.Background()

	require.NoError(t, st.Connect(ctx))
	defer st.Close()

	h := <-srv.headers
	assert.Equal(t, "key", h.Get("TALOS-KEY"))
	assert.NotEmpty(t, h.Get("TALOS-SIGN"))
	assert.True(t, strings.HasSuffix(h.Get("TALOS-TS"), ".000000Z"))

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.Subscribe(ctx, "Order", start))

	sub := <-srv.subs
	assert.Equal(t, "subscribe", sub.Type)
	require.Len(t, sub.Streams, 1)
	assert.Equal(t, "Order", sub.Streams[0].Name)
	assert.Equal(t, "2024-05-01T00:00:00Z", sub.Streams[0].StartDate)

	srv.send <- `{"type":"hello"}`
	msg, err := st.Receive(ctx, time.Second)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, MessageTypeHello, env.Type)
}

func TestStream_TimeoutKeepsConnection(t *testing.T) {
	srv := newWSServer(t)
	st := newTestStream(srv)
	ctx := context.Background()

	require.NoError(t, st.Connect(ctx))
	defer st.Close()
	<-srv.headers
	require.NoError(t, st.Subscribe(ctx, "Order", time.Now()))
	<-srv.subs

	_, err := st.Receive(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrReceiveTimeout)
	assert.True(t, st.IsConnected())

	srv.send <- `{"type":"Order","data":[]}`
	msg, err := st.Receive(ctx, time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"Order"`)
}

func TestStream_ConnectionLost(t *testing.T) {
	srv := newWSServer(t)
	st := newTestStream(srv)
	ctx := context.Background()

	require.NoError(t, st.Connect(ctx))
	defer st.Close()
	<-srv.headers
	require.NoError(t, st.Subscribe(ctx, "Order", time.Now()))
	<-srv.subs

	srv.disconnect()

	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		_, err = st.Receive(ctx, 100*time.Millisecond)
		if !errors.Is(err, domain.ErrReceiveTimeout) {
			break
		}
	}
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnectionLost)
	assert.Equal(t, domain.KindTransport, domain.KindOf(err))
	assert.False(t, st.IsConnected())
}

func TestStream_AuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad signature", http.StatusUnauthorized)
	}))
	defer srv.Close()

	st := NewStream("tal.example.com", "", NewSigner("key", "wrong"), nil)
	st.url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1"

	err := st.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.KindAuth, domain.KindOf(err))
	assert.False(t, st.IsConnected())
}

func TestStream_ReceiveWithoutConnect(t *testing.T) {
	st := NewStream("h", "", NewSigner("k", "s"), nil)

	_, err := st.Receive(context.Background(), time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrNotConnected)
	assert.NoError(t, st.Close())
}
