package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebridge/internal/participant/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// Postgres stores participants. Execute locks the participant row FOR UPDATE
// before running the caller's validate callback, so the conversion
// transaction re-checks its preconditions against committed state.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const participantColumns = `id, referral_id, first_name, last_name, status,
	scheduled_start, onboarded_at, conversion_manager, conversion_title,
	conversion_comments, created_at, updated_at`

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.ReferralID, &p.FirstName, &p.LastName, &p.Status,
		&p.ScheduledStart, &p.OnboardedAt, &p.ConversionManager, &p.ConversionTitle,
		&p.ConversionComments, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Postgres) Create(ctx context.Context, p *models.Participant) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO participants (`+participantColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.ReferralID, p.FirstName, p.LastName, p.Status,
		p.ScheduledStart, p.OnboardedAt, p.ConversionManager, p.ConversionTitle,
		p.ConversionComments, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, participantID id.ParticipantID) (*models.Participant, error) {
	p, err := scanParticipant(s.db.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE id=$1`, participantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return p, nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.Participant, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+participantColumns+` FROM participants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Execute locks the participant row FOR UPDATE, runs validate against the
// locked state, applies mutate, and writes the result back in the same
// transaction. validate runs inside the transaction so collaborator reads
// it performs observe committed state while the row is held.
func (s *Postgres) Execute(ctx context.Context, participantID id.ParticipantID,
	validate func(context.Context, *models.Participant) error,
	mutate func(*models.Participant),
) (*models.Participant, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin participant execute: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanParticipant(tx.QueryRow(ctx, `
		SELECT `+participantColumns+` FROM participants WHERE id=$1 FOR UPDATE`, participantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock participant: %w", err)
	}

	if err := validate(ctx, p); err != nil {
		return nil, err
	}
	mutate(p)

	_, err = tx.Exec(ctx, `
		UPDATE participants
		SET status=$2, scheduled_start=$3, onboarded_at=$4, conversion_manager=$5,
		    conversion_title=$6, conversion_comments=$7, updated_at=$8
		WHERE id=$1`,
		p.ID, p.Status, p.ScheduledStart, p.OnboardedAt, p.ConversionManager,
		p.ConversionTitle, p.ConversionComments, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update participant: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit participant execute: %w", err)
	}
	return p, nil
}
