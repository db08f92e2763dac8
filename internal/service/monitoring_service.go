package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"order_monitor/internal/domain"
	"order_monitor/internal/report"
)

// ErrOrderNotFound is returned when the venue has no such order.
var ErrOrderNotFound = errors.New("order not found")

// MonitoringService manages subscriptions on behalf of operators: adding
// orders to the watch list and posting the scheduled digest.
type MonitoringService struct {
	store           domain.SubscriptionStore
	orders          domain.OrderLookup
	notifier        domain.ChatNotifier
	allowedChannels []string
	pageSize        int
	logger          *slog.Logger
	now             func() time.Time
}

// NewMonitoringService creates the service. An empty allow-list admits every channel.
func NewMonitoringService(store domain.SubscriptionStore, orders domain.OrderLookup, notifier domain.ChatNotifier, allowedChannels []string, pageSize int) *MonitoringService {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &MonitoringService{
		store:           store,
		orders:          orders,
		notifier:        notifier,
		allowedChannels: allowedChannels,
		pageSize:        pageSize,
		logger:          slog.Default().With("module", "monitoring_service"),
		now:             time.Now,
	}
}

// RegisterResult describes what Register did.
type RegisterResult struct {
	Status        domain.ExecutionStatus
	AlreadyActive bool
	Subscription  *domain.Subscription // nil when AlreadyActive
	MessagePosted bool
	ReportMessage string
}

// Register starts watching orderID for channelID. An order that is already
// complete is recorded as completed and not watched.
func (s *MonitoringService) Register(ctx context.Context, orderID, channelID, userID string) (*RegisterResult, error) {
	if len(s.allowedChannels) > 0 && !slices.Contains(s.allowedChannels, channelID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrChannelNotAllowed, channelID)
	}

	status, err := s.orders.FetchOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("fetch order %s: %w", orderID, err)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	existing, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	res := &RegisterResult{Status: *status}
	if existing != nil && existing.Status == domain.SubscriptionActive {
		res.AlreadyActive = true
		res.ReportMessage = report.AlreadyMonitored(orderID, *status)
		s.logger.Info("Order already monitored", slog.String("order_id", orderID))
	} else {
		now := s.now().UTC()
		sub := &domain.Subscription{
			OrderID:     orderID,
			ChannelID:   channelID,
			UserID:      userID,
			Status:      domain.SubscriptionActive,
			StartTime:   now,
			LastCheck:   now,
			LastUpdate:  now,
			LastStatus:  status.Status,
			LastFillPct: status.FillPct,
		}
		if status.IsComplete() {
			sub.Status = domain.SubscriptionCompleted
			sub.CompletionTime = &now
		}
		if err := s.store.Put(ctx, sub); err != nil {
			return nil, err
		}
		res.Subscription = sub
		res.ReportMessage = report.Registered(*status)
		s.logger.Info("Order registered",
			slog.String("order_id", orderID),
			slog.String("channel", channelID),
			slog.String("status", sub.Status),
			slog.String("fill_pct", status.FillPct.String()))
	}

	if err := s.notifier.PostMessage(ctx, channelID, res.ReportMessage); err != nil {
		s.logger.Warn("Registration reply failed", slog.String("order_id", orderID), slog.Any("error", err))
		return res, nil
	}
	res.MessagePosted = true
	return res, nil
}

// CheckSummary counts the outcome of a scheduled check.
type CheckSummary struct {
	Channels  int
	Checked   int
	Completed int
	Failed    int
}

// CheckAll fetches every active order, retires the complete ones and posts
// one digest per channel.
func (s *MonitoringService) CheckAll(ctx context.Context) (CheckSummary, error) {
	byChannel, err := s.activeByChannel(ctx)
	if err != nil {
		return CheckSummary{}, err
	}

	channels := make([]string, 0, len(byChannel))
	for ch := range byChannel {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	var summary CheckSummary
	for _, channelID := range channels {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Channels++
		s.checkChannel(ctx, channelID, byChannel[channelID], &summary)
	}
	s.logger.Info("Scheduled check finished",
		slog.Int("channels", summary.Channels),
		slog.Int("checked", summary.Checked),
		slog.Int("completed", summary.Completed),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// activeByChannel groups active subscriptions by channel. A record returned
// by more than one page (Redis SCAN) is kept once.
func (s *MonitoringService) activeByChannel(ctx context.Context) (map[string][]domain.Subscription, error) {
	filter := domain.ScanFilter{Status: domain.SubscriptionActive}
	out := make(map[string][]domain.Subscription)
	seen := make(map[string]struct{})
	cursor := ""
	for {
		page, next, err := s.store.Scan(ctx, filter, cursor, s.pageSize)
		if err != nil {
			return nil, err
		}
		for _, sub := range page {
			if !filter.Matches(sub) {
				continue
			}
			if _, dup := seen[sub.OrderID]; dup {
				continue
			}
			seen[sub.OrderID] = struct{}{}
			out[sub.ChannelID] = append(out[sub.ChannelID], sub)
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

func (s *MonitoringService) checkChannel(ctx context.Context, channelID string, subs []domain.Subscription, summary *CheckSummary) {
	now := s.now().UTC()
	results := make([]report.CheckResult, 0, len(subs))
	completed := 0

	for _, sub := range subs {
		summary.Checked++
		status, err := s.orders.FetchOrder(ctx, sub.OrderID)
		r := report.CheckResult{OrderID: sub.OrderID, Status: status, Err: err}
		if err != nil || status == nil {
			summary.Failed++
			results = append(results, r)
			continue
		}

		patch := domain.SubscriptionPatch{LastCheck: &now}
		if status.IsComplete() {
			done := domain.SubscriptionCompleted
			patch.Status = &done
			patch.CompletionTime = &now
			r.Complete = true
			completed++
		}
		if err := s.store.Update(ctx, sub.OrderID, patch); err != nil {
			s.logger.Warn("Subscription update failed", slog.String("order_id", sub.OrderID), slog.Any("error", err))
		}
		results = append(results, r)
	}
	summary.Completed += completed

	msg := report.ScheduledUpdate(now, results, completed, len(subs)-completed)
	if err := s.notifier.PostMessage(ctx, channelID, msg); err != nil {
		s.logger.Warn("Digest delivery failed", slog.String("channel", channelID), slog.Any("error", err))
	}
}
