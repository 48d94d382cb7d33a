package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"voice-rooms/internal/app"
)

type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres connects to postgres and returns a pool wrapper
func NewPostgres(ctx context.Context, cfg app.Config, log *slog.Logger) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.PGURL)
	if err != nil {
		return nil, fmt.Errorf("parse pg url: %w", err)
	}
	pcfg.MaxConns = int32(cfg.PGMaxConn)

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Postgres{pool: pool, log: log}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// Ping checks the pool can reach the database
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// InsertRoom stores a new room record
func (p *Postgres) InsertRoom(ctx context.Context, r Room) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, created_at)
		VALUES ($1, $2, $3)
	`, r.ID, r.Name, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	p.log.Info("room.created", "id", r.ID, "name", r.Name)
	return nil
}

// FindRoom fetches a room by ID
func (p *Postgres) FindRoom(ctx context.Context, id string) (Room, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM rooms
		WHERE id = $1
	`, id)

	var r Room
	if err := row.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrNotFound
		}
		return Room{}, fmt.Errorf("find room: %w", err)
	}
	return r, nil
}

// ListRooms returns rooms newest first
func (p *Postgres) ListRooms(ctx context.Context, limit int) ([]Room, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, created_at
		FROM rooms
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	out := []Room{}
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertMessage stores a chat message
func (p *Postgres) InsertMessage(ctx context.Context, m Message) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO messages (id, room_id, user_id, username, message, message_type, file_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
	`, m.ID, m.RoomID, m.UserID, m.Username, m.Message, m.MessageType, m.FileURL, m.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FindMessages returns the latest limit messages of a room, oldest first
func (p *Postgres) FindMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, room_id, user_id, username, message, message_type, COALESCE(file_url, ''), created_at
		FROM (
			SELECT * FROM messages
			WHERE room_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) latest
		ORDER BY created_at ASC
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Username, &m.Message, &m.MessageType, &m.FileURL, &m.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
