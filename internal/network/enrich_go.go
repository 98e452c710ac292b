package network

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// goEnrichRequest is the request body sent to the external GO/KEGG
// over-representation service.
type goEnrichRequest struct {
	Organism string   `json:"organism"`
	Query    []string `json:"query"`
}

// goEnrichResponse mirrors the subset of a functional-enrichment REST API
// (the shape g:Profiler and similar services use) this client consumes.
type goEnrichResponse struct {
	Results []struct {
		TermID           string  `json:"term_id"`
		TermName         string  `json:"term_name"`
		IntersectionSize int     `json:"intersection_size"`
		TermSize         int     `json:"term_size"`
		PValue           float64 `json:"p_value"`
	} `json:"results"`
}

// GOClient calls an external GO/KEGG functional-enrichment API. It is a
// process-wide singleton: every call serializes through mu, enforcing the
// documented 2s minimum inter-call interval regardless of which request
// initiated it.
type GOClient struct {
	http        *http.Client
	baseURL     string
	organism    string
	minInterval time.Duration
	timeout     time.Duration
	log         *logrus.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// NewGOClient creates a GOClient. baseURL is the enrichment service's
// endpoint; organism is the species code the spec's kidney-genetics domain
// always resolves to human ("hsapiens").
func NewGOClient(baseURL, organism string, minInterval, timeout time.Duration, logger *logrus.Logger) *GOClient {
	return &GOClient{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		organism:    organism,
		minInterval: minInterval,
		timeout:     timeout,
		log:         logger,
	}
}

// Enrich queries GO/KEGG over-representation for the given gene symbols.
// On timeout, transport error, or any status other than 200 it logs a warning and
// returns an empty slice — it never fails the surrounding request.
func (c *GOClient) Enrich(ctx context.Context, geneSymbols []string) []EnrichmentRow {
	if len(geneSymbols) == 0 || c.baseURL == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := c.minInterval - time.Since(c.lastCall); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			c.log.WithError(ctx.Err()).Warn("go enrichment call cancelled while rate-limit waiting")
			return nil
		}
	}
	c.lastCall = time.Now()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(goEnrichRequest{Organism: c.organism, Query: geneSymbols})
	if err != nil {
		c.log.WithError(err).Warn("failed to marshal go enrichment request")
		return nil
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		c.log.WithError(err).Warn("failed to build go enrichment request")
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).Warn("go enrichment request failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.WithError(fmt.Errorf("status %d", resp.StatusCode)).Warn("go enrichment request returned a non-200 status")
		return nil
	}

	var parsed goEnrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.log.WithError(err).Warn("failed to decode go enrichment response")
		return nil
	}

	rows := make([]EnrichmentRow, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		rows = append(rows, EnrichmentRow{
			TermID:          r.TermID,
			TermName:        r.TermName,
			ClusterCount:    r.IntersectionSize,
			BackgroundCount: r.TermSize,
			PValue:          r.PValue,
			FDR:             r.PValue,
		})
	}
	return rows
}
