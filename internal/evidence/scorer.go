package evidence

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// NormalizerFor resolves the configured normalizer strategy name
// (domain.SourceConfig.Normalizer) to a RawScoreNormalizer, defaulting the
// field/threshold knobs to each source's summary field.
func NormalizerFor(source domain.SourceName, strategy string) RawScoreNormalizer {
	switch strategy {
	case "log_scale":
		return LogScaleNormalizer{Field: "publication_count", SaturationPoint: 100}
	case "categorical":
		switch source {
		case domain.SourceGenCC:
			return CategoricalNormalizer{Field: "classifications", Scores: GenCCClassificationScores}
		default:
			return CategoricalNormalizer{Field: "classifications", Scores: ClinGenClassificationScores}
		}
	case "count":
		return defaultCountNormalizer(source)
	default:
		return defaultCountNormalizer(source)
	}
}

func defaultCountNormalizer(source domain.SourceName) RawScoreNormalizer {
	switch source {
	case domain.SourcePanelApp:
		return CountNormalizer{Field: "panel_count", Ceiling: 5}
	case domain.SourceHPO:
		return CountNormalizer{Field: "kidney_phenotype_count", Ceiling: 10}
	case domain.SourceDiagnosticPanels:
		return CountNormalizer{Field: "provider_count", Ceiling: 5}
	case domain.SourceStringPPI:
		return CountNormalizer{Field: "interaction_count", Ceiling: 50}
	default:
		return CountNormalizer{Field: "count", Ceiling: 1}
	}
}

// firstClassification reduces a classifications[] list (as decoded
// from JSON, []any of strings) to the single string field CategoricalNormalizer
// expects, taking the strongest (first, per upstream ordering) classification.
func firstClassification(data map[string]any) map[string]any {
	raw, ok := data["classifications"]
	if !ok {
		return data
	}
	list, ok := raw.([]any)
	if !ok || len(list) == 0 {
		return data
	}
	first, ok := list[0].(string)
	if !ok {
		return data
	}
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["classifications"] = first
	return out
}

// Scorer computes the deterministic, recomputable GeneScore aggregate from
// a gene's per-source GeneEvidence rows. It holds no
// database state: the aggregate is a pure function of evidence rows plus
// the active SourceConfig, so recomputation needs no additional state.
type Scorer struct {
	sources map[domain.SourceName]domain.SourceConfig
	tiers   domain.EvidenceTierConfig
}

// NewScorer creates a Scorer bound to the active source weights/normalizers
// and evidence-tier thresholds — both read from configuration, never
// hardcoded.
func NewScorer(sources map[string]domain.SourceConfig, tiers domain.EvidenceTierConfig) *Scorer {
	bySourceName := make(map[domain.SourceName]domain.SourceConfig, len(sources))
	for name, cfg := range sources {
		bySourceName[domain.SourceName(name)] = cfg
	}
	return &Scorer{sources: bySourceName, tiers: tiers}
}

// Score computes percentage_score, source_count, evidence_tier, and per-source
// raw scores for one gene from its evidence rows. It performs no I/O, so it
// needs no context; ctx is accepted only to match the repository-backed call
// sites that feed it.
func (s *Scorer) Score(_ context.Context, geneID int64, rows []*domain.GeneEvidence) (*domain.GeneScore, error) {
	sourceScores := make(map[domain.SourceName]float64, len(rows))
	weightedSum := 0.0

	for _, row := range rows {
		cfg, ok := s.sources[row.SourceName]
		if !ok || !cfg.Enabled {
			continue
		}

		normalizer := NormalizerFor(row.SourceName, cfg.Normalizer)
		data := row.EvidenceData
		if cfg.Normalizer == "categorical" {
			data = firstClassification(data)
		}

		raw := normalizer.Normalize(data)
		sourceScores[row.SourceName] = raw
		weightedSum += cfg.Weight * raw
	}

	percentage := 100 * weightedSum
	if percentage > 100 {
		percentage = 100
	}
	if percentage < 0 {
		percentage = 0
	}

	sourceCount := len(sourceScores)
	tier := s.classify(sourceCount, percentage)

	return &domain.GeneScore{
		GeneID:          geneID,
		PercentageScore: percentage,
		SourceCount:     sourceCount,
		EvidenceTier:    tier,
		SourceScores:    sourceScores,
	}, nil
}

// classify assigns an evidence tier using the configured threshold table
// , evaluated in the canonical priority order from
// strongest to weakest tier so the first matching rule wins.
func (s *Scorer) classify(sourceCount int, percentage float64) domain.EvidenceTier {
	if percentage <= 0 {
		return domain.TierInsufficient
	}

	threshold := func(tier domain.EvidenceTier) float64 {
		for _, r := range s.tiers.Ranges {
			if r.Label == tier {
				return r.Threshold
			}
		}
		return 0
	}

	switch {
	case sourceCount >= 5 && percentage >= threshold(domain.TierComprehensiveSupport):
		return domain.TierComprehensiveSupport
	case sourceCount >= 3 && percentage >= threshold(domain.TierMultiSourceSupport):
		return domain.TierMultiSourceSupport
	case sourceCount >= 2 && percentage >= threshold(domain.TierEstablishedSupport):
		return domain.TierEstablishedSupport
	case sourceCount >= 2 || percentage >= threshold(domain.TierPreliminaryEvidence):
		return domain.TierPreliminaryEvidence
	default:
		return domain.TierMinimalEvidence
	}
}

// ErrNoEvidence is returned by callers that require at least one evidence
// row before scoring; Scorer.Score itself tolerates zero rows (score 0,
// tier insufficient) since that is a valid steady state for a newly
// normalized gene.
var ErrNoEvidence = fmt.Errorf("gene has no evidence rows")
