package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amiskov/authgate/pkg/session"
)

type SessionRepo struct {
	DB *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{
		DB: db,
	}
}

func (sr *SessionRepo) Save(ctx context.Context, rec *session.Record) error {
	userData, err := json.Marshal(rec.User)
	if err != nil {
		return fmt.Errorf("sessions/repo: can't encode user, %w", err)
	}
	_, err = sr.DB.ExecContext(ctx, `INSERT INTO sessions(session_id, api_token, user_data, expiration_date)
		VALUES($1, $2, $3, $4)
		ON CONFLICT (session_id) DO UPDATE
		SET api_token = EXCLUDED.api_token, user_data = EXCLUDED.user_data, expiration_date = EXCLUDED.expiration_date`,
		rec.ID, rec.Token, userData, rec.Expiration)
	if err != nil {
		return fmt.Errorf("sessions/repo: failed upsert into sessions, %w", err)
	}
	return nil
}

func (sr *SessionRepo) Get(ctx context.Context, sessionID string) (*session.Record, error) {
	row := sr.DB.QueryRowContext(ctx, `SELECT session_id, api_token, user_data, expiration_date
		FROM sessions WHERE session_id = $1 AND expiration_date > now()`, sessionID)

	rec := new(session.Record)
	var userData []byte
	err := row.Scan(&rec.ID, &rec.Token, &userData, &rec.Expiration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("sessions/repo: row scan failed, %w", err)
	}
	if len(userData) > 0 {
		if err := json.Unmarshal(userData, &rec.User); err != nil {
			return nil, fmt.Errorf("sessions/repo: can't decode user, %w", err)
		}
	}
	return rec, nil
}

func (sr *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := sr.DB.ExecContext(ctx, "DELETE FROM sessions WHERE session_id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("sessions/repo: failed deleting session, %w", err)
	}
	return nil
}

func (sr *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := sr.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expiration_date <= now()")
	if err != nil {
		return 0, fmt.Errorf("sessions/repo: failed deleting expired sessions, %w", err)
	}
	return res.RowsAffected()
}
