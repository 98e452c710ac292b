// Package normalizer implements the entity model and identifier
// normalizer: resolving incoming gene
// identifiers to canonical Gene rows and refreshing the HGNC snapshot
// that backs that resolution.
package normalizer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HGNCRecord is one row of the HGNC bulk archive.
type HGNCRecord struct {
	HGNCID          string
	ApprovedSymbol  string
	Status          string
	AliasSymbols    []string
	PreviousSymbols []string
}

// HGNCClient fetches the HGNC complete-set bulk archive: one rate-limited
// download of the tab-separated dump per refresh, instead of one search
// request per gene symbol.
type HGNCClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
}

// HGNCClientConfig configures the bulk-archive client.
type HGNCClientConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
}

// NewHGNCClient creates a new HGNC bulk-archive client.
func NewHGNCClient(cfg HGNCClientConfig) *HGNCClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://rest.genenames.org"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 3
	}

	return &HGNCClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// FetchSnapshot downloads the complete HGNC gene set as a tab-separated
// archive and parses it into records. The column order follows HGNC's
// published "complete set" TSV: hgnc_id, symbol, status, alias_symbol,
// prev_symbol (pipe-delimited within a column).
func (h *HGNCClient) FetchSnapshot(ctx context.Context) ([]HGNCRecord, error) {
	if err := h.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	url := h.baseURL + "/fetch/status/Approved"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/tab-separated-values")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("hgnc archive fetch returned status %d: %s", resp.StatusCode, string(body))
	}

	return parseHGNCArchive(resp.Body)
}

// parseHGNCArchive parses the tab-separated HGNC complete-set format.
// header: hgnc_id	symbol	status	alias_symbol	prev_symbol
func parseHGNCArchive(r io.Reader) ([]HGNCRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []HGNCRecord
	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if header {
			header = false
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		for len(cols) < 5 {
			cols = append(cols, "")
		}
		records = append(records, HGNCRecord{
			HGNCID:          strings.TrimSpace(cols[0]),
			ApprovedSymbol:  strings.TrimSpace(cols[1]),
			Status:          strings.TrimSpace(cols[2]),
			AliasSymbols:    splitPipeList(cols[3]),
			PreviousSymbols: splitPipeList(cols[4]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning hgnc archive: %w", err)
	}
	return records, nil
}

func splitPipeList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
