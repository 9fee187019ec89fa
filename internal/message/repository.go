package message

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const selectColumns = "id, room_id, author_id, content, kind, created_at, edited_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed message repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// Create inserts a new message and returns it with its server-assigned id and creation timestamp. This is the only
// write the gateway's dispatcher performs on the persistence gateway.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Message, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO messages (room_id, author_id, content, kind)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+selectColumns,
		params.RoomID, params.AuthorID, params.Content, string(params.Kind),
	)
	return scanMessage(row)
}

// List returns messages in a room ordered newest first. When before is non-nil, only messages created before the
// referenced message are returned (cursor-based pagination). Used by the REST collaborator's history endpoint; the
// gateway never calls this.
func (r *PGRepository) List(ctx context.Context, roomID uuid.UUID, before *uuid.UUID, limit int) ([]Message, error) {
	var rows pgx.Rows
	var err error

	if before != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+selectColumns+` FROM messages
			 WHERE room_id = $1
			   AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			roomID, *before, limit,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+selectColumns+` FROM messages
			 WHERE room_id = $1
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			roomID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

func scanMessage(row pgx.Row) (*Message, error) {
	var msg Message
	var kind string
	if err := row.Scan(&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.Content, &kind, &msg.CreatedAt, &msg.EditedAt); err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.Kind = Kind(kind)
	return &msg, nil
}
