package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"carebridge/internal/plandoc/models"
	id "carebridge/pkg/domain"
	"carebridge/pkg/platform/sentinel"
)

// Postgres is the production plan document store. Family-level operations
// (draft creation, publish) serialize on a transaction-scoped advisory lock
// keyed by (participant, kind), so the one-published and one-draft
// invariants cannot be violated by concurrent writers; the partial unique
// indexes back the same invariants as a second line of defense.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a pgx-backed plan document store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const docColumns = `id, participant_id, kind, version_number, status, content, revision_note, approved_by, published_at, created_at, updated_at`

func scanDoc(row pgx.Row) (*models.PlanDocument, error) {
	var doc models.PlanDocument
	err := row.Scan(&doc.ID, &doc.ParticipantID, &doc.Kind, &doc.VersionNumber, &doc.Status,
		&doc.Content, &doc.RevisionNote, &doc.ApprovedBy, &doc.PublishedAt, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func familyLock(ctx context.Context, tx pgx.Tx, participantID id.ParticipantID, kind models.DocumentKind) error {
	key := participantID.String() + "|" + string(kind)
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateDraft allocates the family's next version number and inserts the
// draft inside one transaction holding the family lock.
func (s *Postgres) CreateDraft(ctx context.Context, doc *models.PlanDocument) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create draft: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := familyLock(ctx, tx, doc.ParticipantID, doc.Kind); err != nil {
		return fmt.Errorf("lock document family: %w", err)
	}

	var draftExists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM plan_documents
			WHERE participant_id=$1 AND kind=$2 AND status='draft'
		)`, doc.ParticipantID, doc.Kind).Scan(&draftExists)
	if err != nil {
		return fmt.Errorf("check open draft: %w", err)
	}
	if draftExists {
		return fmt.Errorf("open draft for %s/%s: %w", doc.ParticipantID, doc.Kind, sentinel.ErrDraftExists)
	}

	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_number), 0) + 1 FROM plan_documents
		WHERE participant_id=$1 AND kind=$2`, doc.ParticipantID, doc.Kind).Scan(&doc.VersionNumber)
	if err != nil {
		return fmt.Errorf("allocate version number: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO plan_documents (`+docColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		doc.ID, doc.ParticipantID, doc.Kind, doc.VersionNumber, doc.Status,
		doc.Content, doc.RevisionNote, doc.ApprovedBy, doc.PublishedAt, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert draft: %w", sentinel.ErrDraftExists)
		}
		return fmt.Errorf("insert draft: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Postgres) FindByID(ctx context.Context, docID id.PlanDocumentID) (*models.PlanDocument, error) {
	doc, err := scanDoc(s.db.QueryRow(ctx, `SELECT `+docColumns+` FROM plan_documents WHERE id=$1`, docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find plan document: %w", err)
	}
	return doc, nil
}

// Execute locks the version row FOR UPDATE, runs validate then mutate, and
// writes the result back in the same transaction.
func (s *Postgres) Execute(ctx context.Context, docID id.PlanDocumentID,
	validate func(*models.PlanDocument) error,
	mutate func(*models.PlanDocument),
) (*models.PlanDocument, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := scanDoc(tx.QueryRow(ctx, `SELECT `+docColumns+` FROM plan_documents WHERE id=$1 FOR UPDATE`, docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock plan document: %w", err)
	}

	if err := validate(doc); err != nil {
		return nil, err
	}
	mutate(doc)

	_, err = tx.Exec(ctx, `
		UPDATE plan_documents
		SET status=$2, content=$3, revision_note=$4, approved_by=$5, published_at=$6, updated_at=$7
		WHERE id=$1`,
		doc.ID, doc.Status, doc.Content, doc.RevisionNote, doc.ApprovedBy, doc.PublishedAt, doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update plan document: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return doc, nil
}

// Publish archives the family's published version and promotes the target
// draft in one transaction under the family lock.
func (s *Postgres) Publish(ctx context.Context, docID id.PlanDocumentID, approver string, now time.Time) (*models.PlanDocument, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin publish: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := scanDoc(tx.QueryRow(ctx, `SELECT `+docColumns+` FROM plan_documents WHERE id=$1 FOR UPDATE`, docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lock plan document: %w", err)
	}
	if !doc.IsDraft() {
		return nil, fmt.Errorf("publish %s in status %s: %w", docID, doc.Status, sentinel.ErrInvalidState)
	}

	if err := familyLock(ctx, tx, doc.ParticipantID, doc.Kind); err != nil {
		return nil, fmt.Errorf("lock document family: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE plan_documents SET status='archived', updated_at=$3
		WHERE participant_id=$1 AND kind=$2 AND status='published'`,
		doc.ParticipantID, doc.Kind, now)
	if err != nil {
		return nil, fmt.Errorf("archive current version: %w", err)
	}

	doc.ApplyPublish(approver, now)
	_, err = tx.Exec(ctx, `
		UPDATE plan_documents
		SET status='published', approved_by=$2, published_at=$3, updated_at=$3
		WHERE id=$1`,
		doc.ID, doc.ApprovedBy, now)
	if err != nil {
		return nil, fmt.Errorf("promote draft: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}
	return doc, nil
}

func (s *Postgres) DeleteDraft(ctx context.Context, docID id.PlanDocumentID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM plan_documents WHERE id=$1 AND status='draft'`, docID)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish missing from non-draft for the error contract.
		var status string
		err := s.db.QueryRow(ctx, `SELECT status FROM plan_documents WHERE id=$1`, docID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("plan document %s: %w", docID, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("inspect plan document: %w", err)
		}
		return fmt.Errorf("discard %s in status %s: %w", docID, status, sentinel.ErrInvalidState)
	}
	return nil
}

func (s *Postgres) GetCurrent(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (*models.PlanDocument, error) {
	doc, err := scanDoc(s.db.QueryRow(ctx, `
		SELECT `+docColumns+` FROM plan_documents
		WHERE participant_id=$1 AND kind=$2 AND status='published'`, participantID, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("current %s for participant %s: %w", kind, participantID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get current version: %w", err)
	}
	return doc, nil
}

func (s *Postgres) HasAny(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM plan_documents WHERE participant_id=$1 AND kind=$2)`,
		participantID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check document family: %w", err)
	}
	return exists, nil
}

func (s *Postgres) ListVersions(ctx context.Context, participantID id.ParticipantID, kind models.DocumentKind) ([]*models.PlanDocument, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+docColumns+` FROM plan_documents
		WHERE participant_id=$1 AND kind=$2 ORDER BY version_number`, participantID, kind)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []*models.PlanDocument
	for rows.Next() {
		doc, err := scanDoc(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}
