package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptKeyPrefix = "signup:attempt:"

// RedisStepStore keeps one hash per attempt: field = step number, value =
// JSON record. ttl == 0 keeps attempts until they are cleared.
type RedisStepStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStepStore(rdb *redis.Client, ttl time.Duration) *RedisStepStore {
	return &RedisStepStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStepStore) Put(ctx context.Context, attemptID string, rec StepRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := attemptKeyPrefix + attemptID
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, strconv.Itoa(rec.Step), raw)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStepStore) Get(ctx context.Context, attemptID string, step int) (StepRecord, bool, error) {
	raw, err := s.rdb.HGet(ctx, attemptKeyPrefix+attemptID, strconv.Itoa(step)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StepRecord{}, false, nil
	}
	if err != nil {
		return StepRecord{}, false, err
	}
	var rec StepRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return StepRecord{}, false, fmt.Errorf("decode step %d: %w", step, err)
	}
	return rec, true, nil
}

func (s *RedisStepStore) All(ctx context.Context, attemptID string) (map[int]StepRecord, error) {
	values, err := s.rdb.HGetAll(ctx, attemptKeyPrefix+attemptID).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int]StepRecord, len(values))
	for field, raw := range values {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var rec StepRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode step %d: %w", n, err)
		}
		out[n] = rec
	}
	return out, nil
}

func (s *RedisStepStore) Clear(ctx context.Context, attemptID string) error {
	return s.rdb.Del(ctx, attemptKeyPrefix+attemptID).Err()
}
