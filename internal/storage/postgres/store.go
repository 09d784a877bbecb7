package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// Store implements storage.Store on PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a Store on p.
//
// Precondition: p must be open and the embedded migrations applied.
func NewStore(p *Pool) *Store {
	return &Store{db: p.db}
}

const userColumns = `id, username, password_hash, wins, losses, draws`

func scanUser(row pgx.Row) (storage.User, error) {
	var u storage.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Wins, &u.Losses, &u.Draws)
	return u, err
}

// GetUser retrieves a user by id.
//
// Postcondition: Returns the User or storage.ErrUserNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (storage.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.User{}, storage.ErrUserNotFound
		}
		return storage.User{}, fmt.Errorf("querying user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername retrieves a user by name, ignoring case.
//
// Postcondition: Returns the User or storage.ErrUserNotFound.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (storage.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.User{}, storage.ErrUserNotFound
		}
		return storage.User{}, fmt.Errorf("querying user %q: %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a new user with zeroed statistics.
//
// Precondition: creds.PasswordHash must already be hashed.
// Postcondition: Returns the created User or storage.ErrUserExists if the
// name is taken in any letter case.
func (s *Store) CreateUser(ctx context.Context, creds storage.Credentials) (storage.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`INSERT INTO users (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING `+userColumns,
		creds.Username, creds.PasswordHash))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.User{}, storage.ErrUserExists
		}
		return storage.User{}, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// UpdateUserStats increments exactly one counter atomically.
//
// Precondition: outcome must be valid.
// Postcondition: Returns the updated User or storage.ErrUserNotFound.
func (s *Store) UpdateUserStats(ctx context.Context, userID int64, outcome storage.Outcome) (storage.User, error) {
	var column string
	switch outcome {
	case storage.OutcomeWin:
		column = "wins"
	case storage.OutcomeLoss:
		column = "losses"
	case storage.OutcomeDraw:
		column = "draws"
	default:
		return storage.User{}, fmt.Errorf("invalid outcome %q", outcome)
	}
	u, err := scanUser(s.db.QueryRow(ctx,
		`UPDATE users SET `+column+` = `+column+` + 1
		 WHERE id = $1
		 RETURNING `+userColumns,
		userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.User{}, storage.ErrUserNotFound
		}
		return storage.User{}, fmt.Errorf("updating stats for user %d: %w", userID, err)
	}
	return u, nil
}

// GetLeaderboard returns up to limit rows ordered by win rate, then wins,
// then id. The win rate is rounded half away from zero, matching
// storage.WinRate.
func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]storage.PlayerStats, error) {
	if limit <= 0 {
		limit = storage.DefaultLeaderboardLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, username, wins, losses, draws,
		        CASE WHEN wins + losses + draws = 0 THEN 0
		             ELSE ROUND(wins * 100.0 / (wins + losses + draws))::int
		        END AS win_rate
		 FROM users
		 ORDER BY win_rate DESC, wins DESC, id ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]storage.PlayerStats, 0, limit)
	for rows.Next() {
		var p storage.PlayerStats
		if err := rows.Scan(&p.ID, &p.Username, &p.Wins, &p.Losses, &p.Draws, &p.WinRate); err != nil {
			return nil, fmt.Errorf("scanning leaderboard row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard: %w", err)
	}
	return out, nil
}

const gameColumns = `id, player_x_id, COALESCE(player_o_id, 0), COALESCE(winner_id, 0),
	is_draw, board_state, moves, created_at, completed_at`

func scanGame(row pgx.Row) (storage.GameRecord, error) {
	var g storage.GameRecord
	var completed *time.Time
	err := row.Scan(&g.ID, &g.PlayerXID, &g.PlayerOID, &g.WinnerID,
		&g.IsDraw, &g.Board, &g.Moves, &g.CreatedAt, &completed)
	g.CompletedAt = completed
	return g, err
}

// CreateGameRecord inserts a game with an empty board. A playerOID of 0 is
// stored as NULL.
func (s *Store) CreateGameRecord(ctx context.Context, playerXID, playerOID int64) (storage.GameRecord, error) {
	g, err := scanGame(s.db.QueryRow(ctx,
		`INSERT INTO games (player_x_id, player_o_id, board_state)
		 VALUES ($1, NULLIF($2::bigint, 0), $3)
		 RETURNING `+gameColumns,
		playerXID, playerOID, storage.EmptyBoard))
	if err != nil {
		return storage.GameRecord{}, fmt.Errorf("inserting game: %w", err)
	}
	return g, nil
}

// UpdateGameRecord applies the non-nil fields of update in one statement.
//
// Postcondition: Returns the updated record or storage.ErrGameNotFound.
func (s *Store) UpdateGameRecord(ctx context.Context, id int64, update storage.GameUpdate) (storage.GameRecord, error) {
	g, err := scanGame(s.db.QueryRow(ctx,
		`UPDATE games SET
		    player_o_id  = CASE WHEN $2::bigint IS NULL THEN player_o_id ELSE NULLIF($2, 0) END,
		    winner_id    = CASE WHEN $3::bigint IS NULL THEN winner_id ELSE NULLIF($3, 0) END,
		    is_draw      = COALESCE($4, is_draw),
		    board_state  = COALESCE($5, board_state),
		    moves        = COALESCE($6, moves),
		    completed_at = COALESCE($7, completed_at)
		 WHERE id = $1
		 RETURNING `+gameColumns,
		id, update.PlayerOID, update.WinnerID, update.IsDraw, update.Board, update.Moves, update.CompletedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.GameRecord{}, storage.ErrGameNotFound
		}
		return storage.GameRecord{}, fmt.Errorf("updating game %d: %w", id, err)
	}
	return g, nil
}

// GetGamesForUser returns up to limit games the user played in, most recent
// activity first.
func (s *Store) GetGamesForUser(ctx context.Context, userID int64, limit int) ([]storage.GameRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+gameColumns+`
		 FROM games
		 WHERE player_x_id = $1 OR player_o_id = $1
		 ORDER BY COALESCE(completed_at, created_at) DESC, id DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying games for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []storage.GameRecord
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game row: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating games: %w", err)
	}
	return out, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
