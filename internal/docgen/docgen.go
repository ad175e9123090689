// Package docgen is the document generation collaborator. Template-to-file
// rendering and file storage are external concerns; this package tracks the
// generated artifacts the readiness gate counts and provides a reference
// in-process generator.
package docgen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	id "carebridge/pkg/domain"
	"carebridge/pkg/requestcontext"
)

// Artifact is a generated document reference. The gate consumes only the
// count; storage_ref points at the externally stored file.
type Artifact struct {
	ID            id.ArtifactID    `json:"id"`
	ParticipantID id.ParticipantID `json:"participant_id"`
	TemplateID    string           `json:"template_id"`
	Version       int              `json:"version"`
	StorageRef    string           `json:"storage_ref"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Generator is the collaborator contract consumed by the gate and handlers.
type Generator interface {
	Generate(ctx context.Context, templateID string, participantID id.ParticipantID) (*Artifact, error)
	BulkGenerate(ctx context.Context, templateIDs []string, participantID id.ParticipantID) ([]*Artifact, error)
	CountByParticipant(ctx context.Context, participantID id.ParticipantID) (int, error)
}

// bulkConcurrency bounds parallel template renders in BulkGenerate.
const bulkConcurrency = 4

// Memory is the reference Generator used in development and tests.
type Memory struct {
	mu        sync.RWMutex
	artifacts map[id.ParticipantID][]*Artifact
}

// NewMemory constructs an empty in-memory generator.
func NewMemory() *Memory {
	return &Memory{artifacts: make(map[id.ParticipantID][]*Artifact)}
}

// Generate records one rendered artifact for the participant.
func (g *Memory) Generate(ctx context.Context, templateID string, participantID id.ParticipantID) (*Artifact, error) {
	artifact := &Artifact{
		ID:            id.NewArtifactID(),
		ParticipantID: participantID,
		TemplateID:    templateID,
		Version:       1,
		StorageRef:    fmt.Sprintf("generated/%s/%s.pdf", participantID, templateID),
		CreatedAt:     requestcontext.Now(ctx),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.artifacts[participantID] = append(g.artifacts[participantID], artifact)
	return artifact, nil
}

// BulkGenerate renders several templates concurrently and returns the
// artifacts in input order. Any failure cancels the remaining renders.
func (g *Memory) BulkGenerate(ctx context.Context, templateIDs []string, participantID id.ParticipantID) ([]*Artifact, error) {
	out := make([]*Artifact, len(templateIDs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(bulkConcurrency)
	for i, templateID := range templateIDs {
		eg.Go(func() error {
			artifact, err := g.Generate(egCtx, templateID, participantID)
			if err != nil {
				return fmt.Errorf("generate %s: %w", templateID, err)
			}
			out[i] = artifact
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// CountByParticipant reports how many artifacts exist for the participant.
func (g *Memory) CountByParticipant(_ context.Context, participantID id.ParticipantID) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.artifacts[participantID]), nil
}
