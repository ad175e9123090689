package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	participantmodels "carebridge/internal/participant/models"
	"carebridge/internal/referral/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// Postgres stores referrals. Accept runs the referral consumption and the
// participant insert in one transaction.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const referralColumns = `id, first_name, last_name, email, phone, notes, status, participant_id, created_at, converted_at`

func scanReferral(row pgx.Row) (*models.Referral, error) {
	var r models.Referral
	err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &r.Email, &r.Phone, &r.Notes,
		&r.Status, &r.ParticipantID, &r.CreatedAt, &r.ConvertedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Postgres) Create(ctx context.Context, r *models.Referral) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO referrals (`+referralColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		r.ID, r.FirstName, r.LastName, r.Email, r.Phone, r.Notes,
		r.Status, r.ParticipantID, r.CreatedAt, r.ConvertedAt)
	if err != nil {
		return fmt.Errorf("insert referral: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, referralID id.ReferralID) (*models.Referral, error) {
	r, err := scanReferral(s.db.QueryRow(ctx, `
		SELECT `+referralColumns+` FROM referrals WHERE id=$1`, referralID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("referral %s: %w", referralID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find referral: %w", err)
	}
	return r, nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.Referral, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+referralColumns+` FROM referrals ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list referrals: %w", err)
	}
	defer rows.Close()

	var out []*models.Referral
	for rows.Next() {
		r, err := scanReferral(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Accept locks the referral FOR UPDATE, builds the participant from it,
// inserts the participant, and marks the referral converted, committing all
// of it together.
func (s *Postgres) Accept(ctx context.Context, referralID id.ReferralID,
	build func(*models.Referral) (*participantmodels.Participant, error),
) (*models.Referral, *participantmodels.Participant, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin referral accept: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := scanReferral(tx.QueryRow(ctx, `
		SELECT `+referralColumns+` FROM referrals WHERE id=$1 FOR UPDATE`, referralID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("referral %s: %w", referralID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lock referral: %w", err)
	}

	p, err := build(r)
	if err != nil {
		return nil, nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO participants (id, referral_id, first_name, last_name, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.ReferralID, p.FirstName, p.LastName, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("create participant from referral: %w", err)
	}

	r.ApplyAccept(p.ID, p.CreatedAt)
	_, err = tx.Exec(ctx, `
		UPDATE referrals SET status=$2, participant_id=$3, converted_at=$4 WHERE id=$1`,
		r.ID, r.Status, r.ParticipantID, r.ConvertedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("update referral: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit referral accept: %w", err)
	}
	return r, p, nil
}
