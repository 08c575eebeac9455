// Package history persists relayed messages and answers recent-history
// queries. The relay works without it; a nil *Store disables the pipeline.
package history

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/chatrelay/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append writes one message to the log. created_at is assigned by the
// database; sent_at keeps the sender's display string untouched.
func (s *Store) Append(ctx context.Context, msg model.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (room, author, body, sent_at) VALUES ($1, $2, $3, $4)`,
		msg.Room, msg.Author, msg.Message, msg.Time,
	)
	if err != nil {
		return fmt.Errorf("internal/history: failed to store message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages for room in chronological order.
func (s *Store) Recent(ctx context.Context, room string, limit int) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT room, author, body, sent_at
		   FROM messages
		  WHERE room = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`,
		room, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("internal/history: failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.Room, &msg.Author, &msg.Message, &msg.Time); err != nil {
			return nil, fmt.Errorf("internal/history: failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("internal/history: failed to read messages: %w", err)
	}

	// The query reads newest-first; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Run drains the broker channel into the store until ctx is cancelled.
// A failed write is logged and dropped; history is best-effort.
func (s *Store) Run(ctx context.Context, messages <-chan model.Message) {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := s.Append(ctx, msg); err != nil {
				log.Printf("%v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
