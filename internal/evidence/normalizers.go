// Package evidence implements the evidence aggregation and scoring engine
// : per-source raw-score normalization and the
// weighted composite percentage score with tiered classification.
package evidence

import (
	"math"
)

// RawScoreNormalizer reduces one source's evidence_data summary field to a
// raw score on [0, 1]. Each source is configured with
// exactly one normalizer strategy (domain.SourceConfig.Normalizer).
type RawScoreNormalizer interface {
	Normalize(evidenceData map[string]any) float64
}

// LogScaleNormalizer maps an unbounded count to [0, 1] via a saturating
// log curve: score = min(1, log(1+count) / log(1+saturationPoint)). Used
// for PubTator's publication_count.
type LogScaleNormalizer struct {
	Field           string
	SaturationPoint float64
}

// Normalize implements RawScoreNormalizer.
func (n LogScaleNormalizer) Normalize(data map[string]any) float64 {
	count := numericField(data, n.Field)
	if count <= 0 {
		return 0
	}
	saturation := n.SaturationPoint
	if saturation <= 0 {
		saturation = 100
	}
	score := math.Log1p(count) / math.Log1p(saturation)
	return clamp01(score)
}

// CategoricalNormalizer maps a classification string to a fixed score via
// a configured lookup table. Used for ClinGen/GenCC classification
// strength. An unrecognized category scores 0.
type CategoricalNormalizer struct {
	Field  string
	Scores map[string]float64
}

// Normalize implements RawScoreNormalizer.
func (n CategoricalNormalizer) Normalize(data map[string]any) float64 {
	raw, ok := data[n.Field]
	if !ok {
		return 0
	}
	category, ok := raw.(string)
	if !ok {
		return 0
	}
	return clamp01(n.Scores[category])
}

// CountNormalizer maps a bounded count to [0, 1] linearly against a
// configured ceiling. Used for PanelApp green-panel counts, diagnostic
// panel provider counts, and HPO kidney-phenotype counts.
type CountNormalizer struct {
	Field   string
	Ceiling float64
}

// Normalize implements RawScoreNormalizer.
func (n CountNormalizer) Normalize(data map[string]any) float64 {
	count := numericField(data, n.Field)
	ceiling := n.Ceiling
	if ceiling <= 0 {
		ceiling = 1
	}
	return clamp01(count / ceiling)
}

func numericField(data map[string]any, field string) float64 {
	raw, ok := data[field]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClinGen/GenCC classification-to-score maps covering the
// Definitive..Refuted scale, used as defaults when configuration does not
// override them.
var (
	ClinGenClassificationScores = map[string]float64{
		"Definitive":   1.0,
		"Strong":       0.8,
		"Moderate":     0.6,
		"Limited":      0.4,
		"Disputed":     0.1,
		"Refuted":      0.0,
		"No Known":     0.0,
		"Animal Model": 0.2,
	}

	GenCCClassificationScores = map[string]float64{
		"Definitive":                    1.0,
		"Strong":                        0.8,
		"Moderate":                      0.6,
		"Supportive":                    0.4,
		"Limited":                       0.3,
		"Disputed Evidence":             0.1,
		"Refuted Evidence":              0.0,
		"No Known Disease Relationship": 0.0,
	}
)
