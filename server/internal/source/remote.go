package source

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/obsidianstack/teamprofiles/server/internal/config"
	"github.com/obsidianstack/teamprofiles/server/internal/profile"
)

// maxBodyBytes bounds a single listing response.
const maxBodyBytes = 8 << 20

// Remote reads profiles from a CMS REST collection endpoint that returns
// WordPress-style post objects with custom fields under "acf".
type Remote struct {
	endpoint string
	client   *http.Client
}

// NewRemote builds a Remote source for cfg. The HTTP client is built once
// and reused across List calls.
func NewRemote(cfg config.SourceConfig) (*Remote, error) {
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("http source: endpoint %q: %w", cfg.Endpoint, err)
	}
	return &Remote{
		endpoint: cfg.Endpoint,
		client:   buildHTTPClient(cfg),
	}, nil
}

// rendered is the {"rendered": "..."} wrapper used for title and content.
type rendered struct {
	Rendered string `json:"rendered"`
}

// wpPost is one element of the REST collection.
type wpPost struct {
	ID              json.RawMessage `json:"id"`
	Type            string          `json:"type"`
	Title           rendered        `json:"title"`
	Content         rendered        `json:"content"`
	MenuOrder       int             `json:"menu_order"`
	FeaturedMedia   string          `json:"featured_media_url"`
	DepartmentSlugs []string        `json:"department_slugs"`
	ACF             json.RawMessage `json:"acf"`
}

// post maps the REST shape onto profile.Post. Custom field values that are
// not strings (the CMS reports unset fields, or a post without any, as false)
// become empty.
func (w wpPost) post() profile.Post {
	var acf map[string]any
	_ = json.Unmarshal(w.ACF, &acf)
	fields := make(map[string]string, len(acf))
	for k, v := range acf {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	return profile.Post{
		ID:          strings.Trim(string(w.ID), `"`),
		Type:        w.Type,
		Title:       w.Title.Rendered,
		Content:     w.Content.Rendered,
		Thumbnail:   w.FeaturedMedia,
		MenuOrder:   w.MenuOrder,
		Departments: w.DepartmentSlugs,
		Fields:      fields,
	}
}

// List fetches the collection with q encoded as query parameters. The server
// is trusted for ordering; the result is still filtered and capped locally.
func (s *Remote) List(ctx context.Context, q Query) ([]profile.Record, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("http source: endpoint: %w", err)
	}
	params := u.Query()
	if q.Limit > 0 {
		params.Set("per_page", strconv.Itoa(q.Limit))
	}
	if q.OrderBy != "" {
		params.Set("orderby", q.OrderBy)
	}
	if q.Order != "" {
		params.Set("order", q.Order)
	}
	if q.Department != "" {
		params.Set("department", q.Department)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("http source: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http source: get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http source: unexpected status %d", resp.StatusCode)
	}

	var items []wpPost
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&items); err != nil {
		return nil, fmt.Errorf("http source: decode: %w", err)
	}

	out := make([]profile.Record, 0, len(items))
	for _, it := range items {
		p := it.post()
		if q.PostType != "" && p.Type != "" && p.Type != q.PostType {
			continue
		}
		r := p.Record()
		if q.Department != "" && len(r.Departments) > 0 && !r.InDepartment(q.Department) {
			continue
		}
		out = append(out, r)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.SourceAuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		header := t.auth.Header
		if header == "" {
			header = "x-api-key"
		}
		req = req.Clone(req.Context())
		req.Header.Set(header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the source's auth and TLS settings.
func buildHTTPClient(cfg config.SourceConfig) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	transport := &authRoundTripper{
		base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
		auth: cfg.Auth,
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultSourceTimeout
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
