package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/ledsync/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Store implements domain.Gateway on Redis: readings live in a list and the
// light flag in a string key holding "0" or "1".
type Store struct {
	rdb    goredis.Cmdable
	prefix string
}

var _ domain.Gateway = (*Store)(nil)

func NewStore(rdb goredis.Cmdable, keyPrefix string) *Store {
	return &Store{rdb: rdb, prefix: keyPrefix}
}

func (s *Store) readingsKey() string { return s.prefix + ":readings" }

func (s *Store) lightKey() string { return s.prefix + ":light_state" }

func (s *Store) LightFlag(ctx context.Context) (bool, error) {
	v, err := s.rdb.Get(ctx, s.lightKey()).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get light flag: %w", domain.ErrStorage, err)
	}
	return v == "1", nil
}

func (s *Store) ToggleLightFlag(ctx context.Context) (bool, error) {
	v, err := toggleFlagScript.Run(ctx, s.rdb, []string{s.lightKey()}).Text()
	if err != nil {
		return false, fmt.Errorf("%w: toggle light flag: %w", domain.ErrStorage, err)
	}
	return v == "1", nil
}

func (s *Store) Readings(ctx context.Context) ([]json.RawMessage, error) {
	values, err := s.rdb.LRange(ctx, s.readingsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list readings: %w", domain.ErrStorage, err)
	}

	readings := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		readings = append(readings, json.RawMessage(v))
	}
	return readings, nil
}

func (s *Store) AppendReading(ctx context.Context, reading json.RawMessage) error {
	if err := s.rdb.RPush(ctx, s.readingsKey(), string(reading)).Err(); err != nil {
		return fmt.Errorf("%w: append reading: %w", domain.ErrStorage, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping: %w", domain.ErrStorage, err)
	}
	return nil
}
