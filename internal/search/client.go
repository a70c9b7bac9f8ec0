package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/technosupport/ts-console/internal/transport"
)

const (
	searchPath   = "/search"
	collaborator = "search"

	// StatusFailureMessage is shown when the search service answers non-2xx.
	StatusFailureMessage = "Failed to fetch search results"
)

// Results is a decoded search response.
type Results struct {
	Records []Record
	// Dropped counts entries excluded as malformed.
	Dropped int
}

type Searcher interface {
	Search(ctx context.Context, query string) (Results, error)
}

// Entries are decoded one by one so a single bad record cannot fail the
// whole response.
type searchResponse struct {
	Results []json.RawMessage `json:"results"`
}

// Client talks to the external search service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// Search issues GET /search?query=... An absent results field is an empty
// result, not an error.
func (c *Client) Search(ctx context.Context, query string) (Results, error) {
	endpoint := transport.Endpoint(c.baseURL, searchPath) + "?" + url.Values{"query": {query}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Results{}, &transport.Error{Kind: transport.KindNetwork, Op: "GET " + searchPath, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	var payload searchResponse
	if err := transport.DoJSON(c.http, collaborator, req, &payload); err != nil {
		var te *transport.Error
		if errors.As(err, &te) && te.Kind == transport.KindStatus && te.Message == "" {
			te.Message = StatusFailureMessage
		}
		return Results{}, err
	}

	records, dropped := validRecords(payload.Results)
	return Results{Records: records, Dropped: dropped}, nil
}
