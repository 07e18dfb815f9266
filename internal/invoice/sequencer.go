package invoice

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"

	"snackkit/backend/internal/store"
)

// StartValue is the counter value before the first invoice; the first
// number handed out is StartValue+1.
const StartValue int64 = 1000

const numberPrefix = "INV-"

// Sequencer hands out invoice numbers. Implementations must make the
// read-increment-write a single atomic step so concurrent sales never share
// a number.
type Sequencer interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
}

func Format(n int64) string {
	return fmt.Sprintf("%s%d", numberPrefix, n)
}

const DefaultRedisKey = "snackkit:invoice_counter"

type RedisSequencer struct {
	client *redis.Client
	key    string
}

func NewRedisSequencer(addr string, password string, db int, key string) *RedisSequencer {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisSequencerWithClient(client, key)
}

func NewRedisSequencerWithClient(client *redis.Client, key string) *RedisSequencer {
	if strings.TrimSpace(key) == "" {
		key = DefaultRedisKey
	}
	return &RedisSequencer{client: client, key: key}
}

func (s *RedisSequencer) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSequencer) Close() error {
	return s.client.Close()
}

// NextInvoiceNumber seeds the counter at StartValue when missing and
// increments it in the same MULTI/EXEC block.
func (s *RedisSequencer) NextInvoiceNumber(ctx context.Context) (string, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, s.key, StartValue, 0)
		incr = pipe.Incr(ctx, s.key)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: next invoice number: %v", store.ErrPersistence, err)
	}
	return Format(incr.Val()), nil
}
