package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository stores finished games.
type Repository interface {
	Save(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Get(ctx context.Context, gameID string) (*Record, error)
	Close() error
}

const schema = `CREATE TABLE IF NOT EXISTS omok_games (
    game_id      TEXT PRIMARY KEY,
    room_id      TEXT NOT NULL,
    board_size   INTEGER NOT NULL,
    game_time    INTEGER NOT NULL,
    black_conn   TEXT NOT NULL,
    white_conn   TEXT NOT NULL,
    winner       TEXT NOT NULL,
    reason       TEXT NOT NULL,
    result       TEXT NOT NULL,
    moves        JSONB NOT NULL,
    transcript   TEXT NOT NULL,
    time_black   INTEGER NOT NULL,
    time_white   INTEGER NOT NULL,
    started_at   TIMESTAMPTZ NOT NULL,
    ended_at     TIMESTAMPTZ NOT NULL,
    duration_sec BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS omok_games_ended_at_idx ON omok_games (ended_at DESC);`

const selectColumns = `game_id, room_id, board_size, game_time, black_conn, white_conn,
    winner, reason, result, moves, transcript, time_black, time_white,
    started_at, ended_at, duration_sec`

// PostgresRepository keeps records in the omok_games table.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(pctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Save upserts rec by game id.
func (r *PostgresRepository) Save(ctx context.Context, rec Record) error {
	movesRaw, err := json.Marshal(rec.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	q := `INSERT INTO omok_games (
        game_id, room_id, board_size, game_time, black_conn, white_conn,
        winner, reason, result, moves, transcript, time_black, time_white,
        started_at, ended_at, duration_sec
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
      ) ON CONFLICT (game_id) DO UPDATE SET
        winner=EXCLUDED.winner,
        reason=EXCLUDED.reason,
        result=EXCLUDED.result,
        moves=EXCLUDED.moves,
        transcript=EXCLUDED.transcript,
        time_black=EXCLUDED.time_black,
        time_white=EXCLUDED.time_white,
        ended_at=EXCLUDED.ended_at,
        duration_sec=EXCLUDED.duration_sec`

	_, err = r.db.ExecContext(ctx, q,
		rec.GameID, rec.RoomID, rec.BoardSize, rec.GameTime, rec.Black, rec.White,
		rec.Winner, rec.Reason, rec.Result, string(movesRaw), rec.Transcript, rec.TimeBlack, rec.TimeWhite,
		rec.StartedAt, rec.EndedAt, rec.DurationSec,
	)
	return err
}

// Recent returns the newest records first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM omok_games ORDER BY ended_at DESC, game_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get returns nil, nil if gameID is unknown.
func (r *PostgresRepository) Get(ctx context.Context, gameID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM omok_games WHERE game_id = $1`, strings.TrimSpace(gameID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var movesRaw []byte
	err := s.Scan(
		&rec.GameID, &rec.RoomID, &rec.BoardSize, &rec.GameTime, &rec.Black, &rec.White,
		&rec.Winner, &rec.Reason, &rec.Result, &movesRaw, &rec.Transcript, &rec.TimeBlack, &rec.TimeWhite,
		&rec.StartedAt, &rec.EndedAt, &rec.DurationSec,
	)
	if err != nil {
		return Record{}, err
	}
	if len(movesRaw) > 0 {
		if err := json.Unmarshal(movesRaw, &rec.Moves); err != nil {
			return Record{}, fmt.Errorf("decode moves: %w", err)
		}
	}
	return rec, nil
}
