package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/miuchi-chat/miuchi/internal/postgres"
)

const selectColumns = "id, name, topic, is_public, created_at"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db  *pgxpool.Pool
	log zerolog.Logger
}

// NewPGRepository creates a new PostgreSQL-backed room repository.
func NewPGRepository(db *pgxpool.Pool, logger zerolog.Logger) *PGRepository {
	return &PGRepository{db: db, log: logger}
}

// FindByID returns the room matching the given ID, with its membership set populated.
func (r *PGRepository) FindByID(ctx context.Context, id uuid.UUID) (*Room, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM rooms WHERE id = $1", selectColumns), id)
	return r.scanWithMembers(ctx, row)
}

// FindByName returns the room matching the given unique name, with its membership set populated.
func (r *PGRepository) FindByName(ctx context.Context, name string) (*Room, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM rooms WHERE name = $1", selectColumns), name)
	return r.scanWithMembers(ctx, row)
}

// Create inserts a new room and adds no members; the REST collaborator is responsible for membership after creation.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (*Room, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO rooms (name, topic, is_public) VALUES ($1, $2, $3) RETURNING %s`, selectColumns),
		params.Name, params.Topic, params.IsPublic,
	)
	ch, err := scanRoom(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("room name %q already taken", params.Name)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	ch.members = map[uuid.UUID]struct{}{}
	return ch, nil
}

// List returns all rooms ordered by creation time, without membership sets populated (the listing endpoint does not
// need per-room membership).
func (r *PGRepository) List(ctx context.Context) ([]Room, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf("SELECT %s FROM rooms ORDER BY created_at", selectColumns))
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var out []Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

func (r *PGRepository) scanWithMembers(ctx context.Context, row pgx.Row) (*Room, error) {
	rm, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	members, err := r.loadMembers(ctx, rm.ID)
	if err != nil {
		return nil, err
	}
	rm.members = members
	return rm, nil
}

func (r *PGRepository) loadMembers(ctx context.Context, roomID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	rows, err := r.db.Query(ctx, "SELECT user_id FROM room_members WHERE room_id = $1", roomID)
	if err != nil {
		return nil, fmt.Errorf("query room members: %w", err)
	}
	defer rows.Close()

	members := make(map[uuid.UUID]struct{})
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan room member: %w", err)
		}
		members[userID] = struct{}{}
	}
	return members, rows.Err()
}

func scanRoom(row pgx.Row) (*Room, error) {
	var rm Room
	if err := row.Scan(&rm.ID, &rm.Name, &rm.Topic, &rm.IsPublic, &rm.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan room: %w", err)
	}
	return &rm, nil
}
