// Package pgrecords implements remote.Records over a direct connection to
// the project's Postgres database, for trusted deployments that bypass the
// REST layer.
package pgrecords

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/chatwithyou/internal/client/models"
	"github.com/dmitrijs2005/chatwithyou/internal/client/remote"
	"github.com/dmitrijs2005/chatwithyou/internal/dbx"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Records struct {
	db dbx.DBTX
}

var _ remote.Records = (*Records)(nil)

func New(db dbx.DBTX) *Records {
	return &Records{db: db}
}

// Open connects to dsn through the pgx driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	return db, nil
}

// mapError translates driver errors into the remote sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return remote.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", remote.ErrConflict, pgErr.Message)
		case "42501":
			return fmt.Errorf("%w: %s", remote.ErrUnauthorized, pgErr.Message)
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// GetProfile reads the row as JSON so that optional legacy columns
// (username, created_at) are picked up when the table has them.
func (r *Records) GetProfile(ctx context.Context, id string) (*models.ProfileRecord, error) {
	query := `SELECT to_jsonb(u) FROM "Users" u WHERE u.id = $1`

	var raw []byte
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&raw); err != nil {
		return nil, mapError(err)
	}

	var rec models.ProfileRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode profile row: %w", err)
	}
	return &rec, nil
}

func (r *Records) InsertProfile(ctx context.Context, p *models.ProfileRecord) error {
	query :=
		`INSERT INTO "Users" (id, email, name, avatar_url, registration_date, last_login, account_type, is_verified, credits, auth_provider)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var credits int64
	if p.Credits != nil {
		credits = *p.Credits
	}

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Email, p.Name, p.AvatarURL, p.RegistrationDate, p.LastLogin,
		string(p.AccountType), p.IsVerified, credits, p.AuthProvider)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// UpdateProfile writes only the columns set in u.
func (r *Records) UpdateProfile(ctx context.Context, id string, u models.ProfileUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.AvatarURL != nil {
		add("avatar_url", *u.AvatarURL)
	}
	if u.LastLogin != nil {
		add("last_login", *u.LastLogin)
	}
	if u.Credits != nil {
		add("credits", *u.Credits)
	}
	if u.UpdatedAt != nil {
		add("updated_at", *u.UpdatedAt)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := `UPDATE "Users" SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (r *Records) InsertLedgerEntry(ctx context.Context, e models.LedgerEntry) error {
	query :=
		`INSERT INTO "Credit_History" (user_id, amount, action_type, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, e.UserID, e.Amount, string(e.ActionType), e.Description, e.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

func (r *Records) ListLedgerEntries(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	query :=
		`SELECT id::text, user_id, amount, action_type, COALESCE(description, ''), created_at
		 FROM "Credit_History"
		 WHERE user_id = $1
		 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var (
			e      models.LedgerEntry
			action string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &action, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		e.ActionType = models.LedgerAction(action)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}
