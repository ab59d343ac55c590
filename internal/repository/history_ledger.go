package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// HistoryLedger is the append+query boundary of the audit trail. The ledger
// lives in a different store than the tickets, so an append is never part of
// the same transaction as the ticket write.
type HistoryLedger interface {
	// Append stores the record. Appending the same record id twice is a
	// no-op, so a retry after a partial failure does not duplicate history.
	Append(ctx context.Context, record *domain.HistoryRecord) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.HistoryRecord, error)
	// LatestMatching walks records newest-first and returns the first one
	// accepted by match, or nil when none qualifies.
	LatestMatching(ctx context.Context, ticketID string, match func(domain.HistoryRecord) bool) (*domain.HistoryRecord, error)
}

type redisHistoryLedger struct {
	client *redis.Client
}

// NewHistoryLedger builds the Redis-backed ledger.
func NewHistoryLedger(client *redis.Client) HistoryLedger {
	return &redisHistoryLedger{client: client}
}

func recordsKey(ticketID string) string {
	return fmt.Sprintf("ledger:%s:records", ticketID)
}

func indexKey(ticketID string) string {
	return fmt.Sprintf("ledger:%s:index", ticketID)
}

// Append writes the record body to a hash keyed by record id and indexes the
// id in a sorted set scored by occurredAt. Both writes overwrite on repeat,
// which makes the append idempotent for deterministic record ids.
func (l *redisHistoryLedger) Append(ctx context.Context, record *domain.HistoryRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	pipe := l.client.TxPipeline()
	pipe.HSet(ctx, recordsKey(record.TicketID), record.ID, payload)
	pipe.ZAdd(ctx, indexKey(record.TicketID), redis.Z{
		Score:  float64(record.OccurredAt.UnixNano()),
		Member: record.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (l *redisHistoryLedger) ListByTicket(ctx context.Context, ticketID string) ([]domain.HistoryRecord, error) {
	ids, err := l.client.ZRange(ctx, indexKey(ticketID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return l.fetch(ctx, ticketID, ids)
}

func (l *redisHistoryLedger) LatestMatching(ctx context.Context, ticketID string, match func(domain.HistoryRecord) bool) (*domain.HistoryRecord, error) {
	ids, err := l.client.ZRevRange(ctx, indexKey(ticketID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	records, err := l.fetch(ctx, ticketID, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if match(records[i]) {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (l *redisHistoryLedger) fetch(ctx context.Context, ticketID string, ids []string) ([]domain.HistoryRecord, error) {
	if len(ids) == 0 {
		return []domain.HistoryRecord{}, nil
	}
	values, err := l.client.HMGet(ctx, recordsKey(ticketID), ids...).Result()
	if err != nil {
		return nil, err
	}

	records := make([]domain.HistoryRecord, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var record domain.HistoryRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
