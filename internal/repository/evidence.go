package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// EvidenceRepository persists per-source GeneEvidence and GeneAnnotation
// rows, owned exclusively by the ingestion orchestrator.
type EvidenceRepository struct {
	db  DB
	log *logrus.Logger
}

// NewEvidenceRepository creates a new evidence repository.
func NewEvidenceRepository(db DB, logger *logrus.Logger) *EvidenceRepository {
	return &EvidenceRepository{db: db, log: logger}
}

// Upsert merges ev.EvidenceData into the existing (gene, source) row rather
// than replacing it outright: a gene's records can legitimately span many
// pages of the same ingestion run (PubTator pmids/mentions, PanelApp
// panels/evidence_levels), and a plain replace would let a later page
// silently discard whatever an earlier page in the same run already wrote.
// List-typed fields are unioned; known derived count fields are recomputed
// from the merged lists.
func (r *EvidenceRepository) Upsert(ctx context.Context, ev *domain.GeneEvidence) (int64, error) {
	existing, err := r.GetEvidence(ctx, ev.GeneID, ev.SourceName)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("loading existing evidence before merge: %w", err)
	}
	var existingData map[string]any
	if existing != nil {
		existingData = existing.EvidenceData
	}
	merged := mergeEvidenceData(existingData, ev.EvidenceData)

	data, err := json.Marshal(merged)
	if err != nil {
		return 0, fmt.Errorf("marshaling evidence data: %w", err)
	}

	query := `
		INSERT INTO gene_evidence (gene_id, source_name, evidence_data, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (gene_id, source_name)
		DO UPDATE SET evidence_data = EXCLUDED.evidence_data, version = EXCLUDED.version, updated_at = NOW()
		RETURNING id`

	var id int64
	err = r.db.QueryRow(ctx, query, ev.GeneID, ev.SourceName, data, ev.Version).Scan(&id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"gene_id": ev.GeneID,
			"source":  ev.SourceName,
			"error":   err,
		}).Error("failed to upsert gene evidence")
		return 0, fmt.Errorf("upserting gene evidence: %w", err)
	}
	return id, nil
}

// derivedCountFields maps a scalar count field to the list field it is
// derived from, and whether that count dedupes the list's elements. Kept as
// an explicit table rather than inferred from field names, since the
// adapters' naming isn't regular enough to derive this generically
// (total_mentions vs mentions, provider_count vs providers).
var derivedCountFields = map[string]struct {
	listKey string
	dedupe  bool
}{
	"publication_count": {"pmids", true},
	"total_mentions":    {"mentions", false},
	"panel_count":       {"panels", false},
	"provider_count":    {"providers", true},
}

// mergeEvidenceData unions list-typed evidence fields across repeated
// Upsert calls for the same (gene, source) and recomputes the derived count
// fields from the merged lists, so neither drifts out of sync with the
// union.
func mergeEvidenceData(existing, incoming map[string]any) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range incoming {
		incomingList, isList := v.([]any)
		if !isList {
			merged[k] = v
			continue
		}
		existingList, _ := merged[k].([]any)
		merged[k] = unionAnyElements(existingList, incomingList)
	}

	for countField, src := range derivedCountFields {
		list, ok := merged[src.listKey].([]any)
		if !ok {
			continue
		}
		if src.dedupe {
			merged[countField] = float64(len(uniqueAnyElements(list)))
		} else {
			merged[countField] = float64(len(list))
		}
	}
	return merged
}

func unionAnyElements(a, b []any) []any {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]any, 0, len(a)+len(b))
	for _, v := range a {
		key := fmt.Sprint(v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		key := fmt.Sprint(v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

func uniqueAnyElements(values []any) []any {
	seen := make(map[string]bool, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		key := fmt.Sprint(v)
		if !seen[key] {
			seen[key] = true
			out = append(out, v)
		}
	}
	return out
}

// DeleteBySource removes every evidence row for a source in one statement,
// used by full-refresh runs to delete-then-repopulate: the delete is its
// own transaction, committed before the page loop starts streaming fresh
// inserts, so a partial failure mid-stream leaves a reduced-but-consistent
// evidence set rather than a mix of old and new data.
func (r *EvidenceRepository) DeleteBySource(ctx context.Context, source domain.SourceName) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM gene_evidence WHERE source_name = $1`, source); err != nil {
		r.log.WithFields(logrus.Fields{"source": source, "error": err}).Error("failed to delete evidence for source")
		return fmt.Errorf("deleting evidence for source %s: %w", source, err)
	}
	r.log.WithField("source", source).Info("deleted existing evidence ahead of full-refresh run")
	return nil
}

// DeleteAnnotationsBySource removes every annotation row for a source,
// mirroring DeleteBySource for sources that write GeneAnnotation instead of
// GeneEvidence (HPO, STRING PPI) so a full-refresh run doesn't accumulate
// annotations for genes upstream no longer reports.
func (r *EvidenceRepository) DeleteAnnotationsBySource(ctx context.Context, source domain.SourceName) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM gene_annotations WHERE source_name = $1`, source); err != nil {
		r.log.WithFields(logrus.Fields{"source": source, "error": err}).Error("failed to delete annotations for source")
		return fmt.Errorf("deleting annotations for source %s: %w", source, err)
	}
	return nil
}

// ListByGene returns every source's evidence row for one gene.
func (r *EvidenceRepository) ListByGene(ctx context.Context, geneID int64) ([]*domain.GeneEvidence, error) {
	query := `
		SELECT id, gene_id, source_name, evidence_data, version, created_at, updated_at
		FROM gene_evidence WHERE gene_id = $1`

	rows, err := r.db.Query(ctx, query, geneID)
	if err != nil {
		return nil, fmt.Errorf("listing gene evidence: %w", err)
	}
	defer rows.Close()

	var out []*domain.GeneEvidence
	for rows.Next() {
		var e domain.GeneEvidence
		var raw []byte
		if err := rows.Scan(&e.ID, &e.GeneID, &e.SourceName, &raw, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning gene evidence row: %w", err)
		}
		if err := json.Unmarshal(raw, &e.EvidenceData); err != nil {
			return nil, fmt.Errorf("unmarshaling evidence data: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene evidence rows: %w", err)
	}
	return out, nil
}

// ListAll returns every GeneEvidence row across all genes and sources, used
// by the query layer to build the scored gene listing in one round trip
// rather than one query per gene.
func (r *EvidenceRepository) ListAll(ctx context.Context) ([]*domain.GeneEvidence, error) {
	query := `
		SELECT id, gene_id, source_name, evidence_data, version, created_at, updated_at
		FROM gene_evidence`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing all gene evidence: %w", err)
	}
	defer rows.Close()

	var out []*domain.GeneEvidence
	for rows.Next() {
		var e domain.GeneEvidence
		var raw []byte
		if err := rows.Scan(&e.ID, &e.GeneID, &e.SourceName, &raw, &e.Version, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning gene evidence row: %w", err)
		}
		if err := json.Unmarshal(raw, &e.EvidenceData); err != nil {
			return nil, fmt.Errorf("unmarshaling evidence data: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene evidence rows: %w", err)
	}
	return out, nil
}

// UpsertAnnotation inserts or replaces a GeneAnnotation row (STRING PPI
// edges, HPO phenotype arrays).
func (r *EvidenceRepository) UpsertAnnotation(ctx context.Context, ann *domain.GeneAnnotation) (int64, error) {
	data, err := json.Marshal(ann.AnnotationData)
	if err != nil {
		return 0, fmt.Errorf("marshaling annotation data: %w", err)
	}

	query := `
		INSERT INTO gene_annotations (gene_id, source_name, annotation_data, version)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (gene_id, source_name)
		DO UPDATE SET annotation_data = EXCLUDED.annotation_data, version = EXCLUDED.version, updated_at = NOW()
		RETURNING id`

	var id int64
	err = r.db.QueryRow(ctx, query, ann.GeneID, ann.SourceName, data, ann.Version).Scan(&id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"gene_id": ann.GeneID,
			"source":  ann.SourceName,
			"error":   err,
		}).Error("failed to upsert gene annotation")
		return 0, fmt.Errorf("upserting gene annotation: %w", err)
	}
	return id, nil
}

// ListAnnotationsBySource returns every annotation row for a source, used
// by the network engine to build the STRING PPI graph.
func (r *EvidenceRepository) ListAnnotationsBySource(ctx context.Context, source domain.SourceName) ([]*domain.GeneAnnotation, error) {
	query := `
		SELECT id, gene_id, source_name, annotation_data, version, created_at, updated_at
		FROM gene_annotations WHERE source_name = $1`

	rows, err := r.db.Query(ctx, query, source)
	if err != nil {
		return nil, fmt.Errorf("listing gene annotations: %w", err)
	}
	defer rows.Close()

	var out []*domain.GeneAnnotation
	for rows.Next() {
		var a domain.GeneAnnotation
		var raw []byte
		if err := rows.Scan(&a.ID, &a.GeneID, &a.SourceName, &raw, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning gene annotation row: %w", err)
		}
		if err := json.Unmarshal(raw, &a.AnnotationData); err != nil {
			return nil, fmt.Errorf("unmarshaling annotation data: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene annotation rows: %w", err)
	}
	return out, nil
}

// ExistingIDs reports, for a batch of PubTator PMIDs, which ones already
// appear in some gene's persisted "pmids" evidence array. Implements
// sources.ExistingIDChecker without loading the full existing PMID set
// into memory: the jsonb `?|` operator lets Postgres do the membership
// test batch by batch.
func (r *EvidenceRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	query := `
		SELECT DISTINCT elem
		FROM gene_evidence, jsonb_array_elements_text(evidence_data -> 'pmids') AS elem
		WHERE source_name = $1 AND evidence_data -> 'pmids' ?| $2`

	rows, err := r.db.Query(ctx, query, domain.SourcePubTator, ids)
	if err != nil {
		return nil, fmt.Errorf("checking existing pubtator pmids: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(ids))
	for rows.Next() {
		var pmid string
		if err := rows.Scan(&pmid); err != nil {
			return nil, fmt.Errorf("scanning existing pmid row: %w", err)
		}
		found[pmid] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating existing pmid rows: %w", err)
	}
	return found, nil
}

// GetEvidence returns one (gene, source) evidence row, or domain.ErrNotFound.
func (r *EvidenceRepository) GetEvidence(ctx context.Context, geneID int64, source domain.SourceName) (*domain.GeneEvidence, error) {
	query := `
		SELECT id, gene_id, source_name, evidence_data, version, created_at, updated_at
		FROM gene_evidence WHERE gene_id = $1 AND source_name = $2`

	var e domain.GeneEvidence
	var raw []byte
	err := r.db.QueryRow(ctx, query, geneID, source).Scan(
		&e.ID, &e.GeneID, &e.SourceName, &raw, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gene evidence not found: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting gene evidence: %w", err)
	}
	if err := json.Unmarshal(raw, &e.EvidenceData); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence data: %w", err)
	}
	return &e, nil
}
