package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/runkeeper/internal/history"
)

const (
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 512
)

// Sink indexes history events as documents of one OpenSearch (or
// Elasticsearch) index through the REST document API.
type Sink struct {
	client   *http.Client
	endpoint string
	user     string
	password string
}

// Option customizes a Sink.
type Option func(*Sink)

// WithHTTPClient replaces the default client (5s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// New returns a sink posting to <baseURL>/<index>/_doc. Credentials in the
// base URL are sent as basic auth and stripped from the endpoint.
func New(baseURL, index string, opts ...Option) *Sink {
	s := &Sink{client: &http.Client{Timeout: defaultTimeout}}
	base := strings.TrimRight(baseURL, "/")
	if u, err := url.Parse(base); err == nil {
		if u.User != nil {
			s.user = u.User.Username()
			s.password, _ = u.User.Password()
			u.User = nil
		}
		if u.Path == "" {
			u.Path = "/"
		}
		s.endpoint = u.JoinPath(index, "_doc").String()
	} else {
		s.endpoint = base + "/" + index + "/_doc"
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index event: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("index event: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases idle connections of the underlying client.
func (s *Sink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
