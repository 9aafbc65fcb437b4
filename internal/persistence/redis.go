package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartengine/internal/model"
)

// Redis key shapes:
//
//	chart:drawings:{symbol}  hash  id   → drawing JSON
//	chart:toggles:{symbol}   hash  name → "1" | "0"
//	chart:layouts            hash  id   → layout JSON
const (
	drawingsKeyPrefix = "chart:drawings:"
	togglesKeyPrefix  = "chart:toggles:"
	layoutsKey        = "chart:layouts"
)

// RedisRemote mirrors annotation state to Redis. All calls run through a
// circuit breaker so a dead Redis degrades to fast local-only operation
// instead of a 2s timeout per save.
type RedisRemote struct {
	client  *goredis.Client
	breaker *CircuitBreaker
}

// NewRedisRemote connects to Redis and pings the server.
func NewRedisRemote(addr, password string, db int) (*RedisRemote, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("annotation mirror connected", "addr", addr)
	return &RedisRemote{
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// Close releases the underlying connection.
func (r *RedisRemote) Close() error { return r.client.Close() }

func (r *RedisRemote) ListDrawings(ctx context.Context, symbol string) ([]model.DrawingAnnotation, error) {
	var out []model.DrawingAnnotation
	err := r.breaker.Execute(func() error {
		vals, err := r.client.HGetAll(ctx, drawingsKeyPrefix+symbol).Result()
		if err != nil {
			return err
		}
		for _, raw := range vals {
			var d model.DrawingAnnotation
			if err := json.Unmarshal([]byte(raw), &d); err != nil {
				continue // skip corrupt entries rather than failing the load
			}
			out = append(out, d)
		}
		return nil
	})
	return out, err
}

func (r *RedisRemote) SaveDrawing(ctx context.Context, a model.DrawingAnnotation) error {
	return r.breaker.Execute(func() error {
		data, err := json.Marshal(a)
		if err != nil {
			return err
		}
		return r.client.HSet(ctx, drawingsKeyPrefix+a.Symbol, a.ID, data).Err()
	})
}

func (r *RedisRemote) DeleteDrawing(ctx context.Context, symbol, id string) error {
	return r.breaker.Execute(func() error {
		return r.client.HDel(ctx, drawingsKeyPrefix+symbol, id).Err()
	})
}

func (r *RedisRemote) ClearDrawings(ctx context.Context, symbol string) error {
	return r.breaker.Execute(func() error {
		return r.client.Del(ctx, drawingsKeyPrefix+symbol).Err()
	})
}

func (r *RedisRemote) ListToggles(ctx context.Context, symbol string) (model.IndicatorToggleSet, error) {
	set := make(model.IndicatorToggleSet)
	err := r.breaker.Execute(func() error {
		vals, err := r.client.HGetAll(ctx, togglesKeyPrefix+symbol).Result()
		if err != nil {
			return err
		}
		for name, v := range vals {
			set[name] = v == "1"
		}
		return nil
	})
	return set, err
}

func (r *RedisRemote) SaveToggle(ctx context.Context, symbol, name string, enabled bool) error {
	return r.breaker.Execute(func() error {
		v := "0"
		if enabled {
			v = "1"
		}
		return r.client.HSet(ctx, togglesKeyPrefix+symbol, name, v).Err()
	})
}

func (r *RedisRemote) ListLayouts(ctx context.Context) ([]model.ChartLayout, error) {
	var out []model.ChartLayout
	err := r.breaker.Execute(func() error {
		vals, err := r.client.HGetAll(ctx, layoutsKey).Result()
		if err != nil {
			return err
		}
		for _, raw := range vals {
			var l model.ChartLayout
			if err := json.Unmarshal([]byte(raw), &l); err != nil {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	return out, err
}

func (r *RedisRemote) SaveLayout(ctx context.Context, l model.ChartLayout) error {
	return r.breaker.Execute(func() error {
		data, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return r.client.HSet(ctx, layoutsKey, l.ID, data).Err()
	})
}

func (r *RedisRemote) DeleteLayout(ctx context.Context, id string) error {
	return r.breaker.Execute(func() error {
		return r.client.HDel(ctx, layoutsKey, id).Err()
	})
}
