package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/infra"
)

type fakeStore struct {
	mu        sync.Mutex
	subs      map[string]domain.Subscription
	scans     int // walks started (empty cursor)
	pages     int
	gets      int
	updates   []string
	scanErr   error
	getErr    error
	updateErr error
}

func newFakeStore(subs ...domain.Subscription) *fakeStore {
	s := &fakeStore{subs: make(map[string]domain.Subscription)}
	for _, sub := range subs {
		s.subs[sub.OrderID] = sub
	}
	return s
}

func activeSub(orderID, channel string) domain.Subscription {
	return domain.Subscription{OrderID: orderID, ChannelID: channel, Status: domain.SubscriptionActive}
}

func (s *fakeStore) Get(ctx context.Context, orderID string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	sub, ok := s.subs[orderID]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *fakeStore) Put(ctx context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.OrderID] = *sub
	return nil
}

func (s *fakeStore) Update(ctx context.Context, orderID string, patch domain.SubscriptionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, orderID)
	if s.updateErr != nil {
		return s.updateErr
	}
	sub, ok := s.subs[orderID]
	if !ok {
		return domain.NewError(domain.KindPersistence, "update", domain.ErrSubscriptionNotFound)
	}
	if patch.LastStatus != nil {
		sub.LastStatus = *patch.LastStatus
	}
	if patch.LastFillPct != nil {
		sub.LastFillPct = *patch.LastFillPct
	}
	if patch.Status != nil {
		sub.Status = *patch.Status
	}
	s.subs[orderID] = sub
	return nil
}

func (s *fakeStore) Scan(ctx context.Context, filter domain.ScanFilter, cursor string, limit int) ([]domain.Subscription, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor == "" {
		s.scans++
	}
	s.pages++
	if s.scanErr != nil {
		return nil, "", s.scanErr
	}

	ids := make([]string, 0, len(s.subs))
	for id := range s.subs {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var page []domain.Subscription
	for _, id := range ids {
		if len(page) == limit {
			break
		}
		if sub := s.subs[id]; filter.Matches(sub) {
			page = append(page, sub)
		}
	}
	next := ""
	if len(page) == limit {
		next = page[len(page)-1].OrderID
	}
	return page, next, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) remove(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, orderID)
}

func (s *fakeStore) counts() (scans, pages, gets, updates int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scans, s.pages, s.gets, len(s.updates)
}

type sentMessage struct {
	Channel string
	Text    string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (n *fakeNotifier) PostMessage(ctx context.Context, channelID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.sent = append(n.sent, sentMessage{Channel: channelID, Text: text})
	return nil
}

func (n *fakeNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

func (n *fakeNotifier) find(substr string) []sentMessage {
	var out []sentMessage
	for _, m := range n.messages() {
		if strings.Contains(m.Text, substr) {
			out = append(out, m)
		}
	}
	return out
}

type fakeStream struct {
	mu          sync.Mutex
	connectErrs []error
	connects    int
	subscribes  int
	closes      int
	msgs        chan []byte
	errs        chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan []byte, 16), errs: make(chan error, 4)}
}

func (f *fakeStream) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return err
	}
	return nil
}

func (f *fakeStream) Subscribe(ctx context.Context, topic string, start time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	return nil
}

func (f *fakeStream) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case m := <-f.msgs:
		return m, nil
	case err := <-f.errs:
		return nil, err
	case <-timer.C:
		return nil, domain.ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeStream) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func orderMessage(id, status, cum, qty string) []byte {
	return []byte(fmt.Sprintf(`{"type":"Order","data":[{"OrderID":%q,"OrdStatus":%q,"Symbol":"BTC-USD","CumQty":%q,"OrderQty":%q,"LeavesQty":"0","AvgPx":"0"}]}`,
		id, status, cum, qty))
}

type pipeline struct {
	store     *fakeStore
	notifier  *fakeNotifier
	metrics   *infra.Metrics
	pool      *Pool
	batcher   *Batcher
	cache     *StateCache
	monitored *MonitoredSet
	processor *Processor
}

func newPipeline(store *fakeStore) *pipeline {
	p := &pipeline{store: store, notifier: &fakeNotifier{}, metrics: infra.NewMetrics()}
	p.pool = NewPool(4, time.Second)
	p.batcher = NewBatcher(p.notifier, p.pool, p.metrics, 10*time.Millisecond, 10)
	p.cache = NewStateCache(100)
	p.monitored = NewMonitoredSet(store, domain.ScanFilter{Status: domain.SubscriptionActive}, 2, 5*time.Minute, p.metrics)
	p.processor = NewProcessor(p.monitored, p.cache, Detector{}, store, p.batcher, p.pool, p.metrics, time.Second)
	return p
}

// settle flushes queued notifications and waits for writes.
func (p *pipeline) settle() {
	p.batcher.Flush(context.Background(), 50)
	p.pool.Wait(2 * time.Second)
}
