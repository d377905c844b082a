package store

import (
	"context"
	"fmt"
	"time"

	"github.com/K3das/qin-bridge/feedback"
	"github.com/jackc/pgx/v5"
)

type FeedbackRow struct {
	ID         int64     `db:"id"`
	Action     string    `db:"action"`
	Source     string    `db:"source"`
	ReceivedAt time.Time `db:"received_at"`
}

const insertFeedback = `INSERT INTO feedback (action, source, received_at) VALUES ($1, $2, $3)`

const recentFeedback = `SELECT id, action, source, received_at FROM feedback ORDER BY received_at DESC, id DESC LIMIT $1`

func (s *Store) RecordFeedback(ctx context.Context, action, source string, at time.Time) error {
	if s.conn == nil {
		return ErrNotConnected
	}

	if _, err := s.conn.Exec(ctx, insertFeedback, action, source, at); err != nil {
		return fmt.Errorf("inserting feedback: %w", err)
	}
	return nil
}

func (s *Store) RecentFeedback(ctx context.Context, limit int) ([]FeedbackRow, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}

	rows, err := s.conn.Query(ctx, recentFeedback, limit)
	if err != nil {
		return nil, fmt.Errorf("querying feedback: %w", err)
	}

	feedbackRows, err := pgx.CollectRows(rows, pgx.RowToStructByName[FeedbackRow])
	if err != nil {
		return nil, fmt.Errorf("collecting feedback: %w", err)
	}

	return feedbackRows, nil
}

// Record makes the store a feedback.Recorder.
func (s *Store) Record(ctx context.Context, e feedback.Event) error {
	return s.RecordFeedback(ctx, e.Action, string(e.Source), e.At)
}

// Recent makes the store a feedback.History.
func (s *Store) Recent(ctx context.Context, limit int) ([]feedback.Event, error) {
	rows, err := s.RecentFeedback(ctx, limit)
	if err != nil {
		return nil, err
	}

	events := make([]feedback.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, feedback.Event{
			Action: row.Action,
			Source: feedback.Source(row.Source),
			At:     row.ReceivedAt,
		})
	}
	return events, nil
}
