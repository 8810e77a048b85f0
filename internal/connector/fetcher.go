package connector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/bradeyre/platinum-repairs-sub001/internal/domain"
	"github.com/bradeyre/platinum-repairs-sub001/internal/status"
)

// FetchResult aggregates the outcome of one fan-out across every
// (source, raw status) slice. Failed slices never blank out successful
// ones: partial success carries both tickets and errors.
type FetchResult struct {
	Tickets []RawTicket
	// Errors holds one entry per failed slice or malformed record.
	Errors []string
}

// Fetcher fans fetches out across sources and target statuses with a
// bounded concurrency limit, collecting per-slice failures.
type Fetcher struct {
	clients    []*Client
	normalizer *status.Normalizer
	limit      int
	logger     *zap.Logger
}

// NewFetcher builds a fetcher over the given source clients. limit bounds
// concurrent slice fetches; values below 1 are clamped to 1.
func NewFetcher(clients []*Client, normalizer *status.Normalizer, limit int, logger *zap.Logger) *Fetcher {
	if limit < 1 {
		limit = 1
	}
	return &Fetcher{clients: clients, normalizer: normalizer, limit: limit, logger: logger}
}

// FetchAll retrieves tickets from every source. With target statuses the
// fetch is one slice per (source, raw status) derived through the
// normalizer's vocabulary table; without, each source is fetched whole.
func (f *Fetcher) FetchAll(ctx context.Context, targets []domain.CanonicalStatus) FetchResult {
	type slice struct {
		client    *Client
		rawStatus string
	}

	var slices []slice
	for _, client := range f.clients {
		if len(targets) == 0 {
			slices = append(slices, slice{client: client})
			continue
		}
		for _, canonical := range targets {
			for _, raw := range f.normalizer.RawStatusesFor(canonical) {
				slices = append(slices, slice{client: client, rawStatus: raw})
			}
		}
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		result FetchResult
	)
	sem := make(chan struct{}, f.limit)

	for _, s := range slices {
		if ctx.Err() != nil {
			mu.Lock()
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: not fetched: %v", s.client.Source(), s.rawStatus, ctx.Err()))
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(s slice) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			tickets, errs := s.client.FetchByStatus(ctx, s.rawStatus)
			f.logger.Debug("fetched slice",
				zap.String("source", s.client.Source()),
				zap.String("raw_status", s.rawStatus),
				zap.Int("tickets", len(tickets)),
				zap.Int("errors", len(errs)))

			mu.Lock()
			defer mu.Unlock()
			result.Tickets = append(result.Tickets, tickets...)
			for _, err := range errs {
				result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", s.client.Source(), s.rawStatus, err))
			}
		}(s)
	}
	wg.Wait()

	// One source may return the same ticket under several raw statuses when
	// it changed state mid-fetch; keep the freshest copy.
	result.Tickets = dedupe(result.Tickets)
	return result
}

func dedupe(tickets []RawTicket) []RawTicket {
	seen := make(map[domain.TicketKey]int, len(tickets))
	out := tickets[:0]
	for _, t := range tickets {
		key := domain.TicketKey{SourceInstance: t.SourceInstance, SourceID: t.SourceID}
		if idx, ok := seen[key]; ok {
			if t.UpdatedAt.After(out[idx].UpdatedAt) {
				out[idx] = t
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, t)
	}
	return out
}
