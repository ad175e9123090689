package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebridge/internal/envelope/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// Postgres stores signature envelopes. The token column is unique; rotation
// replaces it in place, so a rotated token stops resolving the moment the
// update commits.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const envelopeColumns = `id, participant_id, document_ids, signer_name, signer_email,
	signer_role, status, token, typed_name, expires_at, completed_at, created_at, updated_at`

func scanEnvelope(row pgx.Row) (*models.Envelope, error) {
	var e models.Envelope
	err := row.Scan(&e.ID, &e.ParticipantID, &e.DocumentIDs, &e.Signer.Name, &e.Signer.Email,
		&e.Signer.Role, &e.Status, &e.Token, &e.TypedName, &e.ExpiresAt, &e.CompletedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Postgres) Create(ctx context.Context, env *models.Envelope) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO signature_envelopes (`+envelopeColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		env.ID, env.ParticipantID, env.DocumentIDs, env.Signer.Name, env.Signer.Email,
		env.Signer.Role, env.Status, env.Token, env.TypedName, env.ExpiresAt,
		env.CompletedAt, env.CreatedAt, env.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert envelope: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, envelopeID id.EnvelopeID) (*models.Envelope, error) {
	env, err := scanEnvelope(s.db.QueryRow(ctx, `
		SELECT `+envelopeColumns+` FROM signature_envelopes WHERE id=$1`, envelopeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("envelope %s: %w", envelopeID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find envelope: %w", err)
	}
	return env, nil
}

func (s *Postgres) FindByToken(ctx context.Context, token string) (*models.Envelope, error) {
	env, err := scanEnvelope(s.db.QueryRow(ctx, `
		SELECT `+envelopeColumns+` FROM signature_envelopes WHERE token=$1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("signing token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find envelope by token: %w", err)
	}
	return env, nil
}

func (s *Postgres) ListByParticipant(ctx context.Context, participantID id.ParticipantID) ([]*models.Envelope, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+envelopeColumns+` FROM signature_envelopes
		WHERE participant_id=$1 ORDER BY created_at`, participantID)
	if err != nil {
		return nil, fmt.Errorf("list envelopes: %w", err)
	}
	defer rows.Close()

	var out []*models.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows)
		if err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		out = append(out, env)
	}
	return out, rows.Err()
}

// Execute locks the envelope row FOR UPDATE, runs validate then mutate, and
// writes the result back in the same transaction.
func (s *Postgres) Execute(ctx context.Context, envelopeID id.EnvelopeID,
	validate func(*models.Envelope) error,
	mutate func(*models.Envelope),
) (*models.Envelope, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin envelope execute: %w", err)
	}
	defer tx.Rollback(ctx)

	env, err := scanEnvelope(tx.QueryRow(ctx, `
		SELECT `+envelopeColumns+` FROM signature_envelopes WHERE id=$1 FOR UPDATE`, envelopeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("envelope %s: %w", envelopeID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock envelope: %w", err)
	}

	if err := validate(env); err != nil {
		return nil, err
	}
	mutate(env)

	_, err = tx.Exec(ctx, `
		UPDATE signature_envelopes
		SET status=$2, token=$3, typed_name=$4, expires_at=$5, completed_at=$6, updated_at=$7
		WHERE id=$1`,
		env.ID, env.Status, env.Token, env.TypedName, env.ExpiresAt, env.CompletedAt, env.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update envelope: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit envelope execute: %w", err)
	}
	return env, nil
}

// ExpireIfLapsed applies sent/viewed→expired with a conditional update. The
// WHERE clause repeats the status and deadline predicates, so concurrent
// callers racing on the same envelope see at most one row updated.
func (s *Postgres) ExpireIfLapsed(ctx context.Context, envelopeID id.EnvelopeID, now time.Time) (*models.Envelope, bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE signature_envelopes
		SET status='expired', updated_at=$2
		WHERE id=$1 AND status IN ('sent','viewed') AND expires_at < $2`,
		envelopeID, now)
	if err != nil {
		return nil, false, fmt.Errorf("expire envelope: %w", err)
	}

	env, err := s.FindByID(ctx, envelopeID)
	if err != nil {
		return nil, false, err
	}
	return env, tag.RowsAffected() == 1, nil
}
