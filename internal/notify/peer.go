package notify

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

// PeerSender forwards opportunities to a peer analyzer's alert-ingestion
// endpoint. Unlike the operator channels it posts the structured payload,
// not a rendered message.
type PeerSender struct {
	url    string
	apiKey string
	client *http.Client
}

// NewPeerSender creates a PeerSender posting to the given URL. apiKey is
// optional and sent as a bearer token when set.
func NewPeerSender(url, apiKey string) *PeerSender {
	return &PeerSender{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendOpportunity posts the opportunity as JSON to the peer endpoint.
func (p *PeerSender) SendOpportunity(ctx context.Context, opp domain.Opportunity) error {
	body, err := json.Marshal(domain.ExternalAlert{
		PoolID:         opp.PoolID,
		Kind:           opp.Kind,
		EstimatedValue: opp.EstimatedValue,
		RiskScore:      opp.RiskScore,
		BlockNumber:    opp.BlockNumber,
		TxHash:         opp.TxHash,
	})
	if err != nil {
		return fmt.Errorf("peer: marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("peer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("peer: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("peer: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
