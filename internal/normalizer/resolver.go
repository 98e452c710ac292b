package normalizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// ReasonCode is the categorized failure reason resolve() reports when it
// cannot return a gene_id.
type ReasonCode string

const (
	ReasonUnknownToHGNC  ReasonCode = "unknown_to_hgnc"
	ReasonWithdrawn      ReasonCode = "withdrawn"
	ReasonAmbiguousAlias ReasonCode = "ambiguous_alias"
)

// Confidence levels per cascade step: exact symbol and HGNC id lookups are
// definitive identity matches, alias lookups are a registered synonym, and
// a previous-symbol match is the weakest (the identifier named a gene's
// past name, which may have been reused or reassigned since).
const (
	confidenceExact    = 1.0
	confidenceAlias    = 0.85
	confidencePrevious = 0.6
)

// Resolution is the outcome of resolving one raw identifier.
type Resolution struct {
	Gene       *domain.Gene
	Confidence float64
	Reason     ReasonCode
	Ambiguous  bool
	Candidates []*domain.Gene
}

// geneStore is the subset of repository.GeneRepository the resolver needs,
// accepted as an interface so resolution logic is testable with an
// in-memory fake instead of a live Postgres connection.
type geneStore interface {
	GetByHGNCID(ctx context.Context, hgncID string) (*domain.Gene, error)
	GetByApprovedSymbol(ctx context.Context, symbol string) (*domain.Gene, error)
	FindByAlias(ctx context.Context, alias string) ([]*domain.Gene, error)
	FindByPreviousSymbol(ctx context.Context, symbol string) ([]*domain.Gene, error)
}

// stagingStore is the subset of repository.StagingRepository the resolver
// needs to route unresolved identifiers for operator review.
type stagingStore interface {
	Create(ctx context.Context, row *domain.GeneNormalizationStaging) (int64, error)
}

// resolverMemoSize bounds the per-process memo of resolved identifiers. A
// single PubTator page mentions the same few hundred symbols over and over;
// memoizing the successful resolutions turns those repeats into map hits
// instead of repeated database cascades.
const resolverMemoSize = 4096

// Resolver maps incoming gene identifiers to canonical Gene rows. The
// resolution cascade is exact symbol → HGNC id → alias (with ambiguity
// detection) → previous symbol (only if it maps to
// exactly one current gene). Successful resolutions are memoized in a
// bounded in-memory LRU; InvalidateMemo must be called after an HGNC
// snapshot refresh so renamed symbols do not keep resolving to their
// pre-refresh gene.
type Resolver struct {
	genes   geneStore
	staging stagingStore
	memo    *lru.Cache
	log     *logrus.Logger
}

// NewResolver creates a new identifier resolver.
func NewResolver(genes geneStore, staging stagingStore, logger *logrus.Logger) *Resolver {
	memo, _ := lru.New(resolverMemoSize)
	return &Resolver{genes: genes, staging: staging, memo: memo, log: logger}
}

// InvalidateMemo empties the resolution memo, called after an HGNC
// snapshot refresh mutates the alias sets the cascade resolves against.
func (r *Resolver) InvalidateMemo() {
	r.memo.Purge()
}

// Resolve implements the lookup cascade: exact symbol ->
// HGNC id -> alias (ambiguity-checked) -> previous symbol (its own
// ambiguity check, tried only once the alias step fails to resolve). It is
// idempotent: Resolve(resolve(x).canonical_symbol) always reproduces the
// same gene.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Resolution, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.NewCoreError(domain.KindValidation, "gene identifier cannot be empty", nil)
	}

	if cached, ok := r.memo.Get(identifier); ok {
		memoized := cached.(*Resolution)
		return memoized, nil
	}

	res, err := r.resolveUncached(ctx, identifier)
	if err != nil {
		return nil, err
	}
	// Only definitive outcomes are memoized: a gene hit stays a hit until
	// the next snapshot refresh, but an unknown identifier may become
	// resolvable once the refresh lands, so misses always re-run the
	// cascade.
	if res.Gene != nil {
		r.memo.Add(identifier, res)
	}
	return res, nil
}

func (r *Resolver) resolveUncached(ctx context.Context, identifier string) (*Resolution, error) {
	if strings.HasPrefix(strings.ToUpper(identifier), "HGNC:") {
		gene, err := r.genes.GetByHGNCID(ctx, identifier)
		if err == nil {
			if gene.Withdrawn {
				return &Resolution{Reason: ReasonWithdrawn}, nil
			}
			return &Resolution{Gene: gene, Confidence: confidenceExact}, nil
		}
		if !errors.Is(err, domain.ErrNotFound) && !domain.IsKind(err, domain.KindNotFound) {
			return nil, err
		}
	}

	gene, err := r.genes.GetByApprovedSymbol(ctx, identifier)
	if err == nil {
		if gene.Withdrawn {
			return &Resolution{Reason: ReasonWithdrawn}, nil
		}
		return &Resolution{Gene: gene, Confidence: confidenceExact}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) && !domain.IsKind(err, domain.KindNotFound) {
		return nil, err
	}

	aliasCandidates, err := r.genes.FindByAlias(ctx, identifier)
	if err != nil {
		return nil, err
	}
	switch len(aliasCandidates) {
	case 1:
		return &Resolution{Gene: aliasCandidates[0], Confidence: confidenceAlias}, nil
	default:
		if len(aliasCandidates) > 1 {
			return &Resolution{Ambiguous: true, Candidates: aliasCandidates, Reason: ReasonAmbiguousAlias}, nil
		}
	}

	// The alias step found nothing at all (not even an ambiguous match), so
	// — and only so — fall through to the previous-symbol step. An
	// unambiguous alias match always wins over a previous-symbol match for
	// the same identifier; this is why the two steps must not be merged
	// into one combined lookup.
	previousCandidates, err := r.genes.FindByPreviousSymbol(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if len(previousCandidates) == 1 {
		return &Resolution{Gene: previousCandidates[0], Confidence: confidencePrevious}, nil
	}
	if len(previousCandidates) > 1 {
		return &Resolution{Ambiguous: true, Candidates: previousCandidates, Reason: ReasonAmbiguousAlias}, nil
	}

	return &Resolution{Reason: ReasonUnknownToHGNC}, nil
}

// ResolveOrStage resolves an identifier and, on ambiguity or failure to
// resolve, creates a GeneNormalizationStaging row rather than dropping the
// record.
func (r *Resolver) ResolveOrStage(ctx context.Context, identifier string, source domain.SourceName) (*domain.Gene, error) {
	res, err := r.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if res.Gene != nil {
		return res.Gene, nil
	}

	var reason string
	var kind domain.ErrorKind
	switch res.Reason {
	case ReasonAmbiguousAlias:
		reason = fmt.Sprintf("identifier %q maps to %d active genes", identifier, len(res.Candidates))
		kind = domain.KindAmbiguousIdentifier
	case ReasonWithdrawn:
		reason = fmt.Sprintf("identifier %q refers to a withdrawn HGNC symbol", identifier)
		kind = domain.KindWithdrawn
	default:
		reason = "no matching gene found"
		kind = domain.KindNotFound
	}

	staged := &domain.GeneNormalizationStaging{
		RawIdentifier: identifier,
		RawSource:     source,
		Status:        domain.StagingPending,
		ReasonCode:    string(res.Reason),
		Reason:        reason,
	}
	if _, stageErr := r.staging.Create(ctx, staged); stageErr != nil {
		return nil, fmt.Errorf("routing unresolved identifier to staging: %w", stageErr)
	}

	r.log.WithFields(logrus.Fields{
		"identifier":  identifier,
		"source":      source,
		"reason_code": res.Reason,
		"reason":      reason,
	}).Warn("gene identifier could not be resolved, routed to staging")

	return nil, domain.NewCoreError(kind, reason, nil)
}
