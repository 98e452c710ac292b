package sources

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// UploadFormat selects the structured-upload parser an ingestion upload
// request is parsed with.
type UploadFormat string

const (
	UploadFormatJSON UploadFormat = "json"
	UploadFormatCSV  UploadFormat = "csv"
	UploadFormatTSV  UploadFormat = "tsv"
)

// uploadJSONRow is the shape an uploaded JSON array's elements must match.
type uploadJSONRow struct {
	GeneIdentifier string         `json:"gene_identifier"`
	Panels         []string       `json:"panels,omitempty"`
	Providers      []string       `json:"providers,omitempty"`
	EvidenceData   map[string]any `json:"evidence_data,omitempty"`
}

// DiagnosticPanelsAdapter parses uploaded commercial diagnostic panel
// membership lists into RawRecords. Unlike the HTTP-fetching adapters, it
// has no upstream endpoint to page through: FetchPage returns an empty,
// finished page, and ParseUpload parses a whole upload in one call, since
// uploads are small, operator-submitted files rather than paginated APIs.
type DiagnosticPanelsAdapter struct{}

// NewDiagnosticPanelsAdapter creates a new diagnostic-panels upload adapter.
func NewDiagnosticPanelsAdapter() *DiagnosticPanelsAdapter {
	return &DiagnosticPanelsAdapter{}
}

// Name implements Adapter.
func (a *DiagnosticPanelsAdapter) Name() domain.SourceName { return domain.SourceDiagnosticPanels }

// SupportsIncremental implements Adapter.
func (a *DiagnosticPanelsAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter but is not used for diagnostic panels — see
// ParseUpload, which the ingestion upload HTTP handler calls directly with
// the submitted file body.
func (a *DiagnosticPanelsAdapter) FetchPage(_ context.Context, _ int, _ FetchMode) (*PageResult, error) {
	return &PageResult{Done: true}, nil
}

// ParseUpload parses an operator-submitted diagnostic-panel membership file
// into RawRecords, merging rows by gene identifier so repeated mentions
// across providers accumulate into one record's panels/providers lists.
func ParseUpload(format UploadFormat, r io.Reader) ([]domain.RawRecord, error) {
	switch format {
	case UploadFormatJSON:
		return parseUploadJSON(r)
	case UploadFormatCSV:
		return parseUploadDelimited(r, ',')
	case UploadFormatTSV:
		return parseUploadDelimited(r, '\t')
	default:
		return nil, fmt.Errorf("unsupported upload format %q", format)
	}
}

func parseUploadJSON(r io.Reader) ([]domain.RawRecord, error) {
	var rows []uploadJSONRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding diagnostic panel upload: %w", err)
	}

	byGene := map[string]*domain.RawRecord{}
	for _, row := range rows {
		if row.GeneIdentifier == "" {
			continue
		}
		rec := ensureUploadRecord(byGene, row.GeneIdentifier)
		mergeUploadLists(rec, row.Panels, row.Providers)
		for k, v := range row.EvidenceData {
			rec.EvidenceData[k] = v
		}
	}
	return flattenUploadRecords(byGene), nil
}

// parseUploadDelimited parses a CSV/TSV upload expecting a header row with
// at minimum a gene_identifier column, plus optional panel_name and
// provider_name columns — the tabular equivalent of the JSON upload's
// structured rows.
func parseUploadDelimited(r io.Reader, delimiter rune) ([]domain.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("reading diagnostic panel upload header: %w", err)
	}
	col := columnIndex(header)

	geneCol, ok := col["gene_identifier"]
	if !ok {
		return nil, fmt.Errorf("diagnostic panel upload missing required gene_identifier column")
	}

	byGene := map[string]*domain.RawRecord{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading diagnostic panel upload row: %w", err)
		}
		gene := strings.TrimSpace(row[geneCol])
		if gene == "" {
			continue
		}
		rec := ensureUploadRecord(byGene, gene)

		var panels, providers []string
		if idx, ok := col["panel_name"]; ok && idx < len(row) && row[idx] != "" {
			panels = []string{row[idx]}
		}
		if idx, ok := col["provider_name"]; ok && idx < len(row) && row[idx] != "" {
			providers = []string{row[idx]}
		}
		mergeUploadLists(rec, panels, providers)
	}

	return flattenUploadRecords(byGene), nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

func ensureUploadRecord(byGene map[string]*domain.RawRecord, gene string) *domain.RawRecord {
	rec, ok := byGene[gene]
	if !ok {
		rec = &domain.RawRecord{
			GeneIdentifier: gene,
			RawSource:      domain.SourceDiagnosticPanels,
			EvidenceData: map[string]any{
				"panels":    []any{},
				"providers": []any{},
			},
		}
		byGene[gene] = rec
	}
	return rec
}

func mergeUploadLists(rec *domain.RawRecord, panels, providers []string) {
	for _, p := range panels {
		rec.EvidenceData["panels"] = append(rec.EvidenceData["panels"].([]any), p)
	}
	for _, p := range providers {
		rec.EvidenceData["providers"] = append(rec.EvidenceData["providers"].([]any), p)
	}
}

func flattenUploadRecords(byGene map[string]*domain.RawRecord) []domain.RawRecord {
	records := make([]domain.RawRecord, 0, len(byGene))
	for _, rec := range byGene {
		rec.EvidenceData["panel_count"] = float64(len(rec.EvidenceData["panels"].([]any)))
		rec.EvidenceData["provider_count"] = float64(len(dedupeStrings(rec.EvidenceData["providers"].([]any))))
		records = append(records, *rec)
	}
	return records
}

func dedupeStrings(values []any) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
