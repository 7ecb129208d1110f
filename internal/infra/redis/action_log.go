package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boucer/prospek360-recovery-engine/internal/core/domain"
	"github.com/boucer/prospek360-recovery-engine/internal/infra/storage"
)

// ActionLog implements storage.ActionLog as one capped list per finding key.
// Entries are pushed to the head, so the list is newest first.
type ActionLog struct {
	client   *Client
	capacity int
}

// NewActionLog creates a Redis-backed action log keeping capacity entries per key.
func NewActionLog(client *Client, capacity int) *ActionLog {
	if capacity <= 0 {
		capacity = storage.DefaultLogCapacity
	}
	return &ActionLog{client: client, capacity: capacity}
}

// Append pushes the entry and trims the list to capacity in one pipeline.
func (l *ActionLog) Append(ctx context.Context, entry domain.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	key := l.client.logKey(entry.Key)
	pipe := l.client.rdb.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, int64(l.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}
	return nil
}

// Entries returns the retained entries, oldest first.
func (l *ActionLog) Entries(ctx context.Context, key string) ([]domain.LogEntry, error) {
	raw, err := l.client.rdb.LRange(ctx, l.client.logKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange failed: %w", err)
	}

	entries := make([]domain.LogEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var e domain.LogEntry
		if err := json.Unmarshal([]byte(raw[i]), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// LastSuccessfulSend returns the newest successful send of findingType for key.
func (l *ActionLog) LastSuccessfulSend(
	ctx context.Context,
	key string,
	findingType domain.FindingType,
) (*domain.LogEntry, error) {
	entries, err := l.Entries(ctx, key)
	if err != nil {
		return nil, err
	}
	return storage.LastSuccessfulSend(entries, findingType), nil
}
