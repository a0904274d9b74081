package subastas_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/subastafrutas/console/go/internal/models"
)

// AdvanceResult is the response of the state advancement endpoint.
type AdvanceResult struct {
	Message   string           `json:"mensaje"`
	Timestamp models.Timestamp `json:"timestamp"`
}

// Summary counts auctions per status.
type Summary struct {
	Scheduled int `json:"programadas"`
	Active    int `json:"activas"`
	Finished  int `json:"finalizadas"`
	Cancelled int `json:"canceladas"`
	Total     int `json:"total"`
}

// BidHistory is the full offer history of an auction, newest first.
type BidHistory struct {
	AuctionID  int64        `json:"subasta_id"`
	TotalBids  int          `json:"total_ofertas"`
	WinningBid *models.Bid  `json:"oferta_ganadora"`
	Bids       []models.Bid `json:"historial"`
}

// GetAuction loads the authoritative auction detail. ServerTime is taken
// from the body when present, otherwise from the Date header.
func (c *SubastasClient) GetAuction(ctx context.Context, id int64) (*models.Auction, error) {
	resp, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("%s%d/", auctionsPath, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %d: %w", id, err)
	}

	var auction models.Auction
	if err := json.Unmarshal(resp.Body, &auction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auction %d: %w", id, err)
	}

	if auction.ServerTime.IsZero() {
		if date := resp.Header.Get("Date"); date != "" {
			if t, err := http.ParseTime(date); err == nil {
				auction.ServerTime = models.Timestamp{Time: t.UTC()}
			}
		}
	}

	return &auction, nil
}

// AdvanceAuctionStates asks the backend to move auctions whose start or end
// time has passed. The call is idempotent.
func (c *SubastasClient) AdvanceAuctionStates(ctx context.Context) (*AdvanceResult, error) {
	body, err := c.Post(ctx, advanceStatesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to advance auction states: %w", err)
	}

	var result AdvanceResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal advance result: %w", err)
	}
	return &result, nil
}

// Reconcile runs AdvanceAuctionStates and discards the result.
func (c *SubastasClient) Reconcile(ctx context.Context) error {
	_, err := c.AdvanceAuctionStates(ctx)
	return err
}

// AuctionSummary returns auction counts per status.
func (c *SubastasClient) AuctionSummary(ctx context.Context) (*Summary, error) {
	body, err := c.Get(ctx, summaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get auction summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auction summary: %w", err)
	}
	return &summary, nil
}

// BidHistory returns every offer placed on an auction.
func (c *SubastasClient) BidHistory(ctx context.Context, id int64) (*BidHistory, error) {
	body, err := c.Get(ctx, fmt.Sprintf("%s%d/historial_ofertas/", auctionsPath, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get bid history for auction %d: %w", id, err)
	}

	var history BidHistory
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bid history: %w", err)
	}
	return &history, nil
}
