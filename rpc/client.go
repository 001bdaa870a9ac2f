package rpc

import (
	"context"

	"github.com/giygas/medicaments-search/dataset/entities"
	"github.com/giygas/medicaments-search/interfaces"
	"github.com/giygas/medicaments-search/protocol"
)

// Compile-time check to ensure Client implements SearchService
var _ interfaces.SearchService = (*Client)(nil)

// Client is the typed face of a Channel
type Client struct {
	ch *Channel
}

// NewClient wraps ch
func NewClient(ch *Channel) *Client {
	return &Client{ch: ch}
}

// Dial starts a client over t
func Dial(t Transport, opts ...Option) *Client {
	return NewClient(NewChannel(t, opts...))
}

// Init replaces the host's dataset and index
func (c *Client) Init(ctx context.Context, records []entities.Medication) (protocol.InitResult, error) {
	var result protocol.InitResult
	err := c.ch.Send(ctx, protocol.Init, records, &result)
	return result, err
}

// Search returns ranked records for query
func (c *Client) Search(ctx context.Context, query string, filters entities.SearchFilters, limit int) ([]entities.Medication, error) {
	payload := protocol.SearchPayload{Query: query, Limit: limit}
	if !filters.IsEmpty() {
		payload.Filters = &filters
	}

	var results []entities.Medication
	if err := c.ch.Send(ctx, protocol.Search, payload, &results); err != nil {
		return nil, err
	}
	if results == nil {
		results = []entities.Medication{}
	}
	return results, nil
}

// GetByID returns the record with id, or nil when the host has none
func (c *Client) GetByID(ctx context.Context, id string) (*entities.Medication, error) {
	var rec *entities.Medication
	err := c.ch.Send(ctx, protocol.GetByID, protocol.GetByIDPayload{ID: id}, &rec)
	return rec, err
}

// GetStats returns dataset aggregates
func (c *Client) GetStats(ctx context.Context) (entities.Stats, error) {
	var stats entities.Stats
	err := c.ch.Send(ctx, protocol.GetStats, nil, &stats)
	return stats, err
}

// Pending returns the number of in-flight calls
func (c *Client) Pending() int {
	return c.ch.Pending()
}

// Close tears down the channel and its host
func (c *Client) Close() error {
	return c.ch.Close()
}
