package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"order_monitor/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each subscription as a JSON document under prefix+orderID.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ domain.SubscriptionStore = (*RedisStore)(nil)

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, domain.NewError(domain.KindPersistence, "redis ping", err)
	}
	return &RedisStore{client: rdb, prefix: prefix}, nil
}

func (r *RedisStore) key(orderID string) string { return r.prefix + orderID }

func (r *RedisStore) Get(ctx context.Context, orderID string) (*domain.Subscription, error) {
	b, err := r.client.Get(ctx, r.key(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewError(domain.KindPersistence, "get", err)
	}
	var sub domain.Subscription
	if err := json.Unmarshal(b, &sub); err != nil {
		return nil, domain.NewError(domain.KindPersistence, "get", err)
	}
	return &sub, nil
}

func (r *RedisStore) Put(ctx context.Context, sub *domain.Subscription) error {
	b, err := json.Marshal(sub)
	if err != nil {
		return domain.NewError(domain.KindPersistence, "put", err)
	}
	if err := r.client.Set(ctx, r.key(sub.OrderID), b, 0).Err(); err != nil {
		return domain.NewError(domain.KindPersistence, "put", err)
	}
	return nil
}

// Update applies patch under WATCH so concurrent writers do not clobber each other.
func (r *RedisStore) Update(ctx context.Context, orderID string, patch domain.SubscriptionPatch) error {
	key := r.key(orderID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrSubscriptionNotFound
		}
		if err != nil {
			return err
		}
		var sub domain.Subscription
		if err := json.Unmarshal(b, &sub); err != nil {
			return err
		}
		applyPatch(&sub, patch)
		out, err := json.Marshal(&sub)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return domain.NewError(domain.KindPersistence, "update", err)
	}
	return nil
}

// Scan walks keys with SCAN. The cursor is the server cursor in decimal;
// an empty next cursor means the walk is complete. SCAN may return a key
// more than once across pages.
func (r *RedisStore) Scan(ctx context.Context, filter domain.ScanFilter, cursor string, limit int) ([]domain.Subscription, string, error) {
	var pos uint64
	if cursor != "" {
		p, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", domain.NewError(domain.KindPersistence, "scan", err)
		}
		pos = p
	}
	if limit <= 0 {
		limit = 100
	}

	keys, nextPos, err := r.client.Scan(ctx, pos, r.prefix+"*", int64(limit)).Result()
	if err != nil {
		return nil, "", domain.NewError(domain.KindPersistence, "scan", err)
	}

	next := ""
	if nextPos != 0 {
		next = strconv.FormatUint(nextPos, 10)
	}
	if len(keys) == 0 {
		return nil, next, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, "", domain.NewError(domain.KindPersistence, "scan", err)
	}

	page := make([]domain.Subscription, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		var sub domain.Subscription
		if err := json.Unmarshal([]byte(s), &sub); err != nil {
			return nil, "", domain.NewError(domain.KindPersistence, "scan", err)
		}
		if filter.Matches(sub) {
			page = append(page, sub)
		}
	}
	return page, next, nil
}

func (r *RedisStore) Delete(ctx context.Context, orderID string) error {
	if err := r.client.Del(ctx, r.key(orderID)).Err(); err != nil {
		return domain.NewError(domain.KindPersistence, "delete", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func applyPatch(sub *domain.Subscription, p domain.SubscriptionPatch) {
	if p.Status != nil {
		sub.Status = *p.Status
	}
	if p.LastCheck != nil {
		sub.LastCheck = *p.LastCheck
	}
	if p.CompletionTime != nil {
		t := *p.CompletionTime
		sub.CompletionTime = &t
	}
	if p.LastUpdate != nil {
		sub.LastUpdate = *p.LastUpdate
	}
	if p.LastStatus != nil {
		sub.LastStatus = *p.LastStatus
	}
	if p.LastFillPct != nil {
		sub.LastFillPct = *p.LastFillPct
	}
}
