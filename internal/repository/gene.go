// Package repository implements pgx/v5-backed persistence for the
// canonical gene store, per-source evidence, normalization staging, and
// ingestion progress tables: parameterized SQL, logrus field logging, and
// pgx.ErrNoRows mapped to a domain sentinel error.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// GeneRepository handles canonical gene persistence.
type GeneRepository struct {
	db  DB
	log *logrus.Logger
}

// NewGeneRepository creates a new gene repository.
func NewGeneRepository(db DB, logger *logrus.Logger) *GeneRepository {
	return &GeneRepository{db: db, log: logger}
}

// Create inserts a new canonical gene row, returning its assigned id.
func (r *GeneRepository) Create(ctx context.Context, gene *domain.Gene) (int64, error) {
	query := `
		INSERT INTO genes (hgnc_id, approved_symbol, aliases, previous_symbols, withdrawn)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query, gene.HGNCID, gene.ApprovedSymbol, gene.Aliases, gene.PreviousSymbols, gene.Withdrawn).Scan(&id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"hgnc_id": gene.HGNCID,
			"symbol":  gene.ApprovedSymbol,
			"error":   err,
		}).Error("failed to create gene")
		return 0, fmt.Errorf("creating gene: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"gene_id": id,
		"hgnc_id": gene.HGNCID,
		"symbol":  gene.ApprovedSymbol,
	}).Info("gene created")

	return id, nil
}

const geneColumns = `id, hgnc_id, approved_symbol, aliases, previous_symbols, withdrawn, created_at, updated_at`

func scanGene(row pgx.Row, g *domain.Gene) error {
	return row.Scan(&g.ID, &g.HGNCID, &g.ApprovedSymbol, &g.Aliases, &g.PreviousSymbols, &g.Withdrawn, &g.CreatedAt, &g.UpdatedAt)
}

// GetByID retrieves a gene by its internal id.
func (r *GeneRepository) GetByID(ctx context.Context, id int64) (*domain.Gene, error) {
	query := `SELECT ` + geneColumns + ` FROM genes WHERE id = $1`

	var g domain.Gene
	err := scanGene(r.db.QueryRow(ctx, query, id), &g)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gene not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{"gene_id": id, "error": err}).Error("failed to get gene by id")
		return nil, fmt.Errorf("getting gene by id: %w", err)
	}
	return &g, nil
}

// GetByHGNCID retrieves a gene by its HGNC identifier, including a withdrawn
// one: the normalizer needs to see a withdrawn row to report resolve()'s
// "withdrawn" reason rather than treating it as unknown_to_hgnc.
func (r *GeneRepository) GetByHGNCID(ctx context.Context, hgncID string) (*domain.Gene, error) {
	query := `SELECT ` + geneColumns + ` FROM genes WHERE hgnc_id = $1`

	var g domain.Gene
	err := scanGene(r.db.QueryRow(ctx, query, hgncID), &g)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gene not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{"hgnc_id": hgncID, "error": err}).Error("failed to get gene by hgnc id")
		return nil, fmt.Errorf("getting gene by hgnc id: %w", err)
	}
	return &g, nil
}

// GetByApprovedSymbol retrieves a gene by its exact current approved symbol.
func (r *GeneRepository) GetByApprovedSymbol(ctx context.Context, symbol string) (*domain.Gene, error) {
	query := `SELECT ` + geneColumns + ` FROM genes WHERE approved_symbol = $1`

	var g domain.Gene
	err := scanGene(r.db.QueryRow(ctx, query, symbol), &g)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gene not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{"symbol": symbol, "error": err}).Error("failed to get gene by symbol")
		return nil, fmt.Errorf("getting gene by symbol: %w", err)
	}
	return &g, nil
}

// FindByAlias returns every gene whose alias set contains the given symbol,
// used by the normalizer's alias cascade step to detect ambiguous alias
// mappings. Aliases never include previous approved symbols
// — see FindByPreviousSymbol for that, distinct cascade step.
func (r *GeneRepository) FindByAlias(ctx context.Context, alias string) ([]*domain.Gene, error) {
	query := `SELECT ` + geneColumns + ` FROM genes WHERE $1 = ANY(aliases)`

	rows, err := r.db.Query(ctx, query, alias)
	if err != nil {
		r.log.WithFields(logrus.Fields{"alias": alias, "error": err}).Error("failed to find genes by alias")
		return nil, fmt.Errorf("finding genes by alias: %w", err)
	}
	defer rows.Close()

	var genes []*domain.Gene
	for rows.Next() {
		var g domain.Gene
		if err := scanGene(rows, &g); err != nil {
			return nil, fmt.Errorf("scanning gene row: %w", err)
		}
		genes = append(genes, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene rows: %w", err)
	}
	return genes, nil
}

// FindByPreviousSymbol returns every gene whose previous_symbols set
// contains the given symbol — the normalizer's last cascade step, run only
// once the alias step fails to resolve, with its own independent ambiguity
// check.
func (r *GeneRepository) FindByPreviousSymbol(ctx context.Context, symbol string) ([]*domain.Gene, error) {
	query := `SELECT ` + geneColumns + ` FROM genes WHERE $1 = ANY(previous_symbols)`

	rows, err := r.db.Query(ctx, query, symbol)
	if err != nil {
		r.log.WithFields(logrus.Fields{"previous_symbol": symbol, "error": err}).Error("failed to find genes by previous symbol")
		return nil, fmt.Errorf("finding genes by previous symbol: %w", err)
	}
	defer rows.Close()

	var genes []*domain.Gene
	for rows.Next() {
		var g domain.Gene
		if err := scanGene(rows, &g); err != nil {
			return nil, fmt.Errorf("scanning gene row: %w", err)
		}
		genes = append(genes, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene rows: %w", err)
	}
	return genes, nil
}

// UpdateAliases replaces a gene's approved symbol, alias set, and previous-
// symbol set. The HGNC snapshot refresh does not call it: Refresh issues the
// equivalent UPDATE inside its own transaction.
func (r *GeneRepository) UpdateAliases(ctx context.Context, geneID int64, approvedSymbol string, aliases, previousSymbols []string) error {
	query := `
		UPDATE genes SET approved_symbol = $2, aliases = $3, previous_symbols = $4, withdrawn = false, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, geneID, approvedSymbol, aliases, previousSymbols)
	if err != nil {
		r.log.WithFields(logrus.Fields{"gene_id": geneID, "error": err}).Error("failed to update gene aliases")
		return fmt.Errorf("updating gene aliases: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("gene not found: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkWithdrawn flags a gene as withdrawn/obsoleted without deleting it, so
// existing GeneEvidence rows keep resolving by internal id while resolve()
// stops treating it as a valid identifier target.
func (r *GeneRepository) MarkWithdrawn(ctx context.Context, geneID int64) error {
	query := `UPDATE genes SET withdrawn = true, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Exec(ctx, query, geneID)
	if err != nil {
		r.log.WithFields(logrus.Fields{"gene_id": geneID, "error": err}).Error("failed to mark gene withdrawn")
		return fmt.Errorf("marking gene withdrawn: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("gene not found: %w", domain.ErrNotFound)
	}
	return nil
}

// ListAll returns every canonical gene, used by the HGNC snapshot refresh
// to diff the current store against the freshly downloaded dump.
func (r *GeneRepository) ListAll(ctx context.Context) ([]*domain.Gene, error) {
	query := `SELECT ` + geneColumns + ` FROM genes`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing genes: %w", err)
	}
	defer rows.Close()

	var genes []*domain.Gene
	for rows.Next() {
		var g domain.Gene
		if err := scanGene(rows, &g); err != nil {
			return nil, fmt.Errorf("scanning gene row: %w", err)
		}
		genes = append(genes, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gene rows: %w", err)
	}
	return genes, nil
}
