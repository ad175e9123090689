package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebridge/internal/review/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// Postgres stores manager reviews. The partial unique index
// manager_reviews_one_active enforces one non-rejected review per
// participant.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const reviewColumns = `id, participant_id, status, reviewer, comments, decided_at, created_at`

func scanReview(row pgx.Row) (*models.ManagerReview, error) {
	var r models.ManagerReview
	err := row.Scan(&r.ID, &r.ParticipantID, &r.Status, &r.Reviewer, &r.Comments, &r.DecidedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Postgres) Create(ctx context.Context, review *models.ManagerReview) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO manager_reviews (`+reviewColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		review.ID, review.ParticipantID, review.Status, review.Reviewer,
		review.Comments, review.DecidedAt, review.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("active review exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *Postgres) FindActive(ctx context.Context, participantID id.ParticipantID) (*models.ManagerReview, error) {
	review, err := scanReview(s.db.QueryRow(ctx, `
		SELECT `+reviewColumns+` FROM manager_reviews
		WHERE participant_id=$1 AND status <> 'rejected'`, participantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("review for participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find active review: %w", err)
	}
	return review, nil
}

// Execute locks the active review row FOR UPDATE, runs validate then mutate,
// and writes the result back in the same transaction.
func (s *Postgres) Execute(ctx context.Context, participantID id.ParticipantID,
	validate func(*models.ManagerReview) error,
	mutate func(*models.ManagerReview),
) (*models.ManagerReview, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin review execute: %w", err)
	}
	defer tx.Rollback(ctx)

	review, err := scanReview(tx.QueryRow(ctx, `
		SELECT `+reviewColumns+` FROM manager_reviews
		WHERE participant_id=$1 AND status <> 'rejected' FOR UPDATE`, participantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("review for participant %s: %w", participantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock review: %w", err)
	}

	if err := validate(review); err != nil {
		return nil, err
	}
	mutate(review)

	_, err = tx.Exec(ctx, `
		UPDATE manager_reviews
		SET status=$2, reviewer=$3, comments=$4, decided_at=$5
		WHERE id=$1`,
		review.ID, review.Status, review.Reviewer, review.Comments, review.DecidedAt)
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit review execute: %w", err)
	}
	return review, nil
}
