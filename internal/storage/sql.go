package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const callLogColumns = `id, timestamp, request_id, endpoint, method,
	status_code, latency_ms, family, provider, user_agent, remote_addr,
	request_headers, request_body, response_headers, response_body,
	error_code, metadata, created_at`

const callLogColumnCount = 18

// sqlStore holds the queries shared by the database/sql backends. bind
// renders the n-th (1-based) placeholder in the driver's dialect.
type sqlStore struct {
	db   *sql.DB
	bind func(n int) string
}

func (s *sqlStore) ensureSchema(ctx context.Context, statements []string) error {
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// SaveCallLog saves a single call log
func (s *sqlStore) SaveCallLog(ctx context.Context, callLog *CallLog) error {
	return s.SaveCallLogsBatch(ctx, []*CallLog{callLog})
}

// SaveCallLogsBatch saves multiple call logs in a single transaction
func (s *sqlStore) SaveCallLogsBatch(ctx context.Context, logs []*CallLog) (err error) {
	if len(logs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	values := make([]interface{}, 0, len(logs)*callLogColumnCount)
	placeholders := make([]string, 0, len(logs))

	for i, entry := range logs {
		row := make([]string, callLogColumnCount)
		for j := range row {
			row[j] = s.bind(i*callLogColumnCount + j + 1)
		}
		placeholders = append(placeholders, "("+strings.Join(row, ", ")+")")

		reqHeaders, err := marshalJSON(entry.RequestHeaders)
		if err != nil {
			return fmt.Errorf("failed to encode request headers: %w", err)
		}
		respHeaders, err := marshalJSON(entry.ResponseHeaders)
		if err != nil {
			return fmt.Errorf("failed to encode response headers: %w", err)
		}
		metadata, err := marshalJSON(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}

		values = append(values,
			entry.ID,
			entry.Timestamp.UTC(),
			entry.RequestID,
			entry.Endpoint,
			entry.Method,
			deref(entry.StatusCode),
			deref(entry.LatencyMs),
			deref(entry.Family),
			deref(entry.Provider),
			deref(entry.UserAgent),
			deref(entry.RemoteAddr),
			reqHeaders,
			deref(entry.RequestBody),
			respHeaders,
			deref(entry.ResponseBody),
			deref(entry.ErrorCode),
			metadata,
			entry.CreatedAt.UTC(),
		)
	}

	query := "INSERT INTO proxy_call_logs (" + callLogColumns + ") VALUES " + strings.Join(placeholders, ", ")
	if _, err = tx.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to insert logs: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// where renders the filter's conditions and their arguments.
func (s *sqlStore) where(filter LogFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, s.bind(len(args))))
	}

	if filter.StartTime != nil {
		add("timestamp >= %s", filter.StartTime.UTC())
	}
	if filter.EndTime != nil {
		add("timestamp <= %s", filter.EndTime.UTC())
	}
	if filter.Family != nil {
		add("family = %s", *filter.Family)
	}
	if filter.Provider != nil {
		add("provider = %s", *filter.Provider)
	}
	if filter.StatusCode != nil {
		add("status_code = %s", *filter.StatusCode)
	}
	if filter.HasError != nil {
		if *filter.HasError {
			conds = append(conds, "error_code IS NOT NULL")
		} else {
			conds = append(conds, "error_code IS NULL")
		}
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// GetCallLogs retrieves call logs based on filter criteria
func (s *sqlStore) GetCallLogs(ctx context.Context, filter LogFilter) ([]*CallLog, error) {
	where, args := s.where(filter)
	column, dir := filter.order()

	query := "SELECT " + callLogColumns + " FROM proxy_call_logs" + where + fmt.Sprintf(" ORDER BY %s %s", column, dir)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT " + s.bind(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += " OFFSET " + s.bind(len(args))
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []*CallLog
	for rows.Next() {
		entry, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// GetCallLogByID retrieves a single call log by ID. A missing log is (nil, nil).
func (s *sqlStore) GetCallLogByID(ctx context.Context, id string) (*CallLog, error) {
	logID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid UUID: %w", err)
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+callLogColumns+" FROM proxy_call_logs WHERE id = "+s.bind(1), logID)
	entry, err := scanCallLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// GetLogStats retrieves aggregated statistics
func (s *sqlStore) GetLogStats(ctx context.Context, filter LogFilter) (*LogStats, error) {
	where, args := s.where(filter)
	stats := &LogStats{ProviderStats: make(map[string]int64)}

	var failed int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(AVG(latency_ms), 0),
		COALESCE(SUM(CASE WHEN error_code IS NOT NULL OR status_code >= 400 THEN 1 ELSE 0 END), 0)
		FROM proxy_call_logs`+where, args...).Scan(&stats.TotalRequests, &stats.AverageLatency, &failed)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate logs: %w", err)
	}
	if stats.TotalRequests > 0 {
		stats.ErrorRate = float64(failed) / float64(stats.TotalRequests)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT COALESCE(provider, ''), COUNT(*) FROM proxy_call_logs"+where+" GROUP BY provider", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			provider string
			count    int64
		)
		if err := rows.Scan(&provider, &count); err != nil {
			return nil, fmt.Errorf("failed to scan provider count: %w", err)
		}
		stats.ProviderStats[provider] = count
	}
	return stats, rows.Err()
}

// DeleteBefore removes logs older than cutoff and returns how many were removed.
func (s *sqlStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM proxy_call_logs WHERE timestamp < "+s.bind(1), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete logs: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// deref turns optional fields into driver values, nil becoming NULL.
func deref[T any](p *T) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCallLog(row scanner) (*CallLog, error) {
	entry := &CallLog{}
	var reqHeaders, respHeaders, metadata []byte

	err := row.Scan(
		&entry.ID,
		&entry.Timestamp,
		&entry.RequestID,
		&entry.Endpoint,
		&entry.Method,
		&entry.StatusCode,
		&entry.LatencyMs,
		&entry.Family,
		&entry.Provider,
		&entry.UserAgent,
		&entry.RemoteAddr,
		&reqHeaders,
		&entry.RequestBody,
		&respHeaders,
		&entry.ResponseBody,
		&entry.ErrorCode,
		&metadata,
		&entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan log: %w", err)
	}

	if err := unmarshalJSON(reqHeaders, &entry.RequestHeaders); err != nil {
		return nil, fmt.Errorf("failed to decode request headers: %w", err)
	}
	if err := unmarshalJSON(respHeaders, &entry.ResponseHeaders); err != nil {
		return nil, fmt.Errorf("failed to decode response headers: %w", err)
	}
	if err := unmarshalJSON(metadata, &entry.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return entry, nil
}
