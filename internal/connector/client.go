// Package connector fetches raw tickets from external helpdesk instances.
// Sources cap result volume per call, so fetching is driven per targeted
// raw status rather than pulled wholesale and filtered client-side.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultPageSize    = 100
	defaultHTTPTimeout = 30 * time.Second
)

// SourceConfig describes one configured helpdesk instance.
type SourceConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// Client talks to a single source's ticket API.
type Client struct {
	source SourceConfig
	http   *http.Client
}

// NewClient builds a client for one source. A nil httpClient gets a shared
// default with a request timeout.
func NewClient(source SourceConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{source: source, http: httpClient}
}

// Source returns the configured source name.
func (c *Client) Source() string {
	return c.source.Name
}

// FetchByStatus retrieves every ticket currently in the given raw status,
// following pagination until exhausted. An empty rawStatus fetches all
// tickets (used by full resyncs). Malformed records are returned separately
// so one bad payload never hides the rest of the page.
func (c *Client) FetchByStatus(ctx context.Context, rawStatus string) ([]RawTicket, []error) {
	var tickets []RawTicket
	var malformed []error

	page := 1
	for {
		resp, err := c.fetchPage(ctx, rawStatus, page)
		if err != nil {
			return tickets, append(malformed, err)
		}
		for _, payload := range resp.Tickets {
			ticket, err := payload.validate(c.source.Name)
			if err != nil {
				malformed = append(malformed, err)
				continue
			}
			tickets = append(tickets, ticket)
		}
		if resp.TotalPages <= page || len(resp.Tickets) == 0 {
			break
		}
		page++
	}
	return tickets, malformed
}

func (c *Client) fetchPage(ctx context.Context, rawStatus string, page int) (*ticketListResponse, error) {
	query := url.Values{}
	query.Set("page", fmt.Sprintf("%d", page))
	query.Set("per_page", fmt.Sprintf("%d", defaultPageSize))
	if rawStatus != "" {
		query.Set("status", rawStatus)
	}
	apiURL := fmt.Sprintf("%s/api/v1/tickets?%s", c.source.BaseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", c.source.Name, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.source.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: executing request: %w", c.source.Name, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", c.source.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: API returned %d: %s", c.source.Name, resp.StatusCode, string(body))
	}

	var result ticketListResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%s: parsing response: %w", c.source.Name, err)
	}
	return &result, nil
}
