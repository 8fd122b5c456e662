package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

const defaultRESTTimeout = 10 * time.Second

// RESTStore inserts rows through a PostgREST-compatible endpoint
// (POST {base}/rest/v1/{table}).
type RESTStore struct {
	baseURL string
	apiKey  string
	client  *fasthttp.Client
}

// NewRESTStore creates a store for baseURL authenticated with apiKey.
func NewRESTStore(baseURL, apiKey string) *RESTStore {
	return &RESTStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &fasthttp.Client{
			Name:                "tracelog",
			MaxConnsPerHost:     16,
			ReadTimeout:         defaultRESTTimeout,
			WriteTimeout:        defaultRESTTimeout,
			MaxIdleConnDuration: time.Minute,
		},
	}
}

func (s *RESTStore) Insert(ctx context.Context, table string, rows []Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	// PostgREST bulk inserts need every object to carry the same keys.
	payload := make([]Row, len(rows))
	for i, r := range rows {
		payload[i] = Complete(table, r)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode rows for %s: %w", table, err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.baseURL + "/rest/v1/" + table)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Prefer", "return=minimal")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultRESTTimeout)
	}
	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	if code := resp.StatusCode(); code >= 300 {
		return fmt.Errorf("insert into %s: status %d: %s", table, code, truncateBody(resp.Body()))
	}
	return nil
}

func truncateBody(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
