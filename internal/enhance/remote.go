package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mevshield/mevwatch/internal/domain"
)

// Remote routes score enhancement through an external reasoning service.
// The service receives the candidate plus its same-pool window history and
// returns the adjusted candidate. The engine treats any failure here as
// recoverable and falls back to the unmodified detector output, so this
// client only has to report errors honestly.
type Remote struct {
	url    string
	apiKey string
	client *http.Client
}

// NewRemote creates a Remote enhancer for the given endpoint. timeout bounds
// each call; no enhancement request may block the cycle indefinitely.
func NewRemote(url, apiKey string, timeout time.Duration) *Remote {
	return &Remote{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// enhanceRequest is the wire shape sent to the reasoning service.
type enhanceRequest struct {
	Candidate domain.Opportunity   `json:"candidate"`
	History   []domain.Opportunity `json:"history"`
}

// Enhance posts the candidate to the reasoning service and returns its
// adjustment. Out-of-bounds scores in the response are rejected rather than
// clamped; a service that returns garbage should not silently shape risk.
func (r *Remote) Enhance(ctx context.Context, opp domain.Opportunity, history []domain.Opportunity) (domain.Opportunity, error) {
	body, err := json.Marshal(enhanceRequest{Candidate: opp, History: history})
	if err != nil {
		return opp, fmt.Errorf("%w: marshal request: %w", domain.ErrEnhancement, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return opp, fmt.Errorf("%w: create request: %w", domain.ErrEnhancement, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return opp, fmt.Errorf("%w: %w", domain.ErrEnhancement, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return opp, fmt.Errorf("%w: status %d: %s", domain.ErrEnhancement, resp.StatusCode, string(respBody))
	}

	var enhanced domain.Opportunity
	if err := json.NewDecoder(resp.Body).Decode(&enhanced); err != nil {
		return opp, fmt.Errorf("%w: decode response: %w", domain.ErrEnhancement, err)
	}
	if err := enhanced.Validate(); err != nil {
		return opp, fmt.Errorf("%w: %w", domain.ErrEnhancement, err)
	}
	// The service adjusts scores only; identity fields stay as detected.
	if enhanced.ID != opp.ID || enhanced.PoolID != opp.PoolID || enhanced.Kind != opp.Kind {
		return opp, fmt.Errorf("%w: response identity mismatch for %s", domain.ErrEnhancement, opp.ID)
	}

	return enhanced, nil
}

// Compile-time interface check.
var _ domain.ScoreEnhancer = (*Remote)(nil)
