package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"officehub/utils"
)

const (
	userKeyPrefix = "presence:user:"
	onlineSetKey  = "presence:online"

	fieldName       = "name"
	fieldIsOnline   = "is_online"
	fieldLastActive = "last_active"

	maxUpdateRetries = 5
)

// RedisStore keeps presence records as one hash per user plus a set of users
// whose flag is currently online.
type RedisStore struct {
	redis  *redis.Client
	logger *utils.Logger

	// beforeWrite runs between the existence check and the write in Update.
	beforeWrite func()
}

func NewRedisStore(client *redis.Client, logger *utils.Logger) *RedisStore {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &RedisStore{redis: client, logger: logger}
}

func userKey(userID string) string {
	return userKeyPrefix + userID
}

// Create registers a user.
func (s *RedisStore) Create(ctx context.Context, rec UserRecord) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, userKey(rec.ID),
			fieldName, rec.Name,
			fieldIsOnline, encodeBool(rec.IsOnline),
			fieldLastActive, encodeTime(rec.LastActive),
		)
		if rec.IsOnline {
			pipe.SAdd(ctx, onlineSetKey, rec.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*UserRecord, error) {
	fields, err := s.redis.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	rec, err := decodeRecord(userID, fields)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update patches an existing user. The key is watched across the existence
// check and the write, so a user deleted in between is never recreated.
func (s *RedisStore) Update(ctx context.Context, userID string, patch Patch) error {
	key := userKey(userID)

	update := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		if s.beforeWrite != nil {
			s.beforeWrite()
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			values := []any{fieldIsOnline, encodeBool(patch.IsOnline)}
			if patch.LastActive != nil {
				values = append(values, fieldLastActive, encodeTime(*patch.LastActive))
			}
			pipe.HSet(ctx, key, values...)

			if patch.IsOnline {
				pipe.SAdd(ctx, onlineSetKey, userID)
			} else {
				pipe.SRem(ctx, onlineSetKey, userID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to update presence: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to update presence: %w", redis.TxFailedErr)
}

func (s *RedisStore) Query(ctx context.Context, filter Filter) ([]UserRecord, error) {
	userIDs, err := s.candidates(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []UserRecord{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(userIDs))
	for i, userID := range userIDs {
		cmds[i] = pipe.HGetAll(ctx, userKey(userID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get presence data: %w", err)
	}

	records := make([]UserRecord, 0, len(userIDs))
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			s.logger.Warn("Failed to read presence record", "user_id", userIDs[i], "error", err)
			continue
		}
		if len(fields) == 0 {
			// Deleted between the scan and the read.
			continue
		}
		rec, err := decodeRecord(userIDs[i], fields)
		if err != nil {
			s.logger.Warn("Skipping corrupt presence record", "user_id", userIDs[i], "error", err)
			continue
		}
		if filter.Matches(rec) {
			records = append(records, rec)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].LastActive.After(records[j].LastActive)
	})
	return records, nil
}

// candidates narrows the scan to the online set when the filter allows it.
func (s *RedisStore) candidates(ctx context.Context, filter Filter) ([]string, error) {
	if filter.Online != nil && *filter.Online {
		ids, err := s.redis.SMembers(ctx, onlineSetKey).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get online users: %w", err)
		}
		return ids, nil
	}

	var ids []string
	iter := s.redis.Scan(ctx, 0, userKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), userKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return ids, nil
}

func decodeRecord(userID string, fields map[string]string) (UserRecord, error) {
	rec := UserRecord{
		ID:       userID,
		Name:     fields[fieldName],
		IsOnline: fields[fieldIsOnline] == "1",
	}
	if raw := fields[fieldLastActive]; raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return UserRecord{}, fmt.Errorf("failed to parse last_active for %s: %w", userID, err)
		}
		rec.LastActive = t
	}
	return rec, nil
}

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
