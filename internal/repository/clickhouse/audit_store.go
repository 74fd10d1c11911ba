package clickhouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
	"repairdesk/internal/util"
)

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_events (
    event_type    LowCardinality(String),
    account_id    UInt64,
    employee_code String,
    actor_id      UInt64,
    detail        String,
    occurred_at   DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (occurred_at, event_type)`

// AuditStore lands audit events in ClickHouse and answers the login report.
type AuditStore struct {
	client *client.ClickHouseClient
	logger *zap.Logger
}

func NewAuditStore(chClient *client.ClickHouseClient, logger *zap.Logger) *AuditStore {
	return &AuditStore{client: chClient, logger: logger}
}

// EnsureSchema creates the audit table when missing.
func (s *AuditStore) EnsureSchema(ctx context.Context) error {
	if err := s.client.Conn.Exec(ctx, createAuditTable); err != nil {
		return fmt.Errorf("failed to create audit_events table: %w", err)
	}
	return nil
}

// InsertBatch writes a batch of audit events in one round trip.
func (s *AuditStore) InsertBatch(ctx context.Context, events []models.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.client.Conn.PrepareBatch(ctx, "INSERT INTO audit_events")
	if err != nil {
		return fmt.Errorf("failed to prepare audit batch: %w", err)
	}

	for _, ev := range events {
		if err := batch.Append(
			ev.EventType,
			uint64(ev.AccountID),
			ev.EmployeeCode,
			uint64(ev.ActorID),
			ev.Detail,
			ev.OccurredAt,
		); err != nil {
			return fmt.Errorf("failed to append audit event: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send audit batch: %w", err)
	}

	util.Debug("Audit batch inserted", zap.Int("events", len(events)))
	return nil
}

// LoginReportRow is one line of the login-activity report.
type LoginReportRow struct {
	EmployeeCode string `json:"employee_code"`
	EventType    string `json:"event_type"`
	Count        uint64 `json:"count"`
}

// LoginReport aggregates login-related events per employee since the cutoff.
func (s *AuditStore) LoginReport(ctx context.Context, since time.Time) ([]LoginReportRow, error) {
	const query = `
SELECT employee_code, event_type, count() AS cnt
FROM audit_events
WHERE occurred_at >= ?
GROUP BY employee_code, event_type
ORDER BY employee_code, event_type`

	rows, err := s.client.Conn.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query login report: %w", err)
	}
	defer rows.Close()

	var report []LoginReportRow
	for rows.Next() {
		var row LoginReportRow
		if err := rows.Scan(&row.EmployeeCode, &row.EventType, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		report = append(report, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("report iteration failed: %w", err)
	}
	return report, nil
}
