package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// Change tells the store what to do with a record after it has been inspected
type Change struct {
	Put    *Record
	TTL    time.Duration
	Delete bool
}

// Store persists OTP records keyed by (email, purpose)
type Store interface {
	Get(ctx context.Context, email string, purpose Purpose) (*Record, error)
	// Update reads the current record (nil when absent), applies the Change returned
	// by fn atomically, and then returns fn's error.
	Update(ctx context.Context, email string, purpose Purpose, fn func(current *Record) (Change, error)) error
}

// RedisStore keeps one key per (email, purpose) and relies on WATCH/MULTI so
// read-check-write sequences cannot interleave
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "otp"}
}

func (s *RedisStore) key(email string, purpose Purpose) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, purpose, email)
}

// Get returns the stored record or ErrNotFound
func (s *RedisStore) Get(ctx context.Context, email string, purpose Purpose) (*Record, error) {
	data, err := s.client.Get(ctx, s.key(email, purpose)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get otp record: %w", err)
	}

	return decodeRecord(data)
}

// Update runs fn inside an optimistic transaction, retrying when another
// writer touched the key between the read and the write
func (s *RedisStore) Update(ctx context.Context, email string, purpose Purpose, fn func(current *Record) (Change, error)) error {
	key := s.key(email, purpose)

	for i := 0; i < maxTxRetries; i++ {
		var fnErr error

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			var current *Record

			data, err := tx.Get(ctx, key).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
			case err != nil:
				return err
			default:
				current, err = decodeRecord(data)
				if err != nil {
					return err
				}
			}

			change, err := fn(current)
			fnErr = err

			if change.Put == nil && !change.Delete {
				return nil
			}

			var encoded []byte
			if change.Put != nil {
				if change.TTL <= 0 {
					return fmt.Errorf("otp record ttl must be positive, got %s", change.TTL)
				}
				encoded, err = json.Marshal(change.Put)
				if err != nil {
					return fmt.Errorf("failed to encode otp record: %w", err)
				}
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if change.Delete {
					pipe.Del(ctx, key)
					return nil
				}
				pipe.Set(ctx, key, encoded, change.TTL)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update otp record: %w", err)
		}

		return fnErr
	}

	return ErrConflict
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode otp record: %w", err)
	}
	return &rec, nil
}
