// Package store persists document metadata, reading progress and highlights
// to the metadata service over HTTP. The in-memory state owned by the caller
// stays authoritative; writes are best effort and reads arrive as full-record
// snapshots.
package store

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/voxread/readkit/highlight"
	"github.com/voxread/readkit/observability"
)

// maxRecordBytes is the service's per-record size ceiling. Records that would
// exceed it are written in reduced form with geometry split out per
// highlight.
const maxRecordBytes = 900_000

// DocRecord is the stored shape of one document.
type DocRecord struct {
	ID             string                `json:"id"`
	Title          string                `json:"title,omitempty"`
	CurrentPage    int                   `json:"currentPage,omitempty"`
	ReadingOffset  int                   `json:"readingOffset,omitempty"`
	Highlights     []highlight.Highlight `json:"highlights,omitempty"`
	HighlightOrder []string              `json:"highlightOrder,omitempty"`
	Reduced        bool                  `json:"reduced,omitempty"`
	UpdatedAt      time.Time             `json:"updatedAt,omitempty"`
}

// Client talks to the metadata service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     observability.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAPIKey sets a bearer token on every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithLogger sets the client's logger.
func WithLogger(log observability.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient builds a metadata store client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     observability.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Merge upserts the given fields into the document record without touching
// fields it does not name.
func (c *Client) Merge(ctx context.Context, docID string, fields map[string]any) error {
	body, err := sonic.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode merge: %w", err)
	}
	return c.send(ctx, http.MethodPatch, "/v1/docs/"+docID, body)
}

// Get fetches the full document record.
func (c *Client) Get(ctx context.Context, docID string) (DocRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/docs/"+docID, nil)
	if err != nil {
		return DocRecord{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return DocRecord{}, fmt.Errorf("fetch document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DocRecord{}, fmt.Errorf("fetch document: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return DocRecord{}, fmt.Errorf("read document: %w", err)
	}
	var rec DocRecord
	if err := sonic.Unmarshal(data, &rec); err != nil {
		return DocRecord{}, fmt.Errorf("decode document: %w", err)
	}
	return rec, nil
}

// SaveHighlights implements highlight.Persister. When the encoded record
// would exceed the service's size ceiling, rect geometry is stripped from
// the main record and each highlight's full payload is written to the
// per-highlight sub-collection instead.
func (c *Client) SaveHighlights(ctx context.Context, docID string, items []highlight.Highlight, order []string) error {
	full := map[string]any{
		"highlights":     items,
		"highlightOrder": order,
		"reduced":        false,
		"updatedAt":      time.Now().UTC(),
	}
	body, err := sonic.Marshal(full)
	if err != nil {
		return fmt.Errorf("encode highlights: %w", err)
	}
	if len(body) <= maxRecordBytes {
		return c.send(ctx, http.MethodPatch, "/v1/docs/"+docID, body)
	}

	c.log.Warn("highlight record over size ceiling, writing reduced form",
		observability.String("doc", docID),
		observability.Int("bytes", len(body)))
	reduced := make([]highlight.Highlight, len(items))
	for i, h := range items {
		r := h
		r.Rects = nil
		r.Image = ""
		reduced[i] = r
	}
	body, err = sonic.Marshal(map[string]any{
		"highlights":     reduced,
		"highlightOrder": order,
		"reduced":        true,
		"updatedAt":      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode reduced highlights: %w", err)
	}
	if err := c.send(ctx, http.MethodPatch, "/v1/docs/"+docID, body); err != nil {
		return err
	}
	for _, h := range items {
		hb, err := sonic.Marshal(h)
		if err != nil {
			return fmt.Errorf("encode highlight %s: %w", h.ID, err)
		}
		if err := c.send(ctx, http.MethodPut, "/v1/docs/"+docID+"/highlights/"+h.ID, hb); err != nil {
			return err
		}
	}
	return nil
}

// LoadHighlights reassembles the highlight set, pulling full payloads from
// the sub-collection when the main record is in reduced form.
func (c *Client) LoadHighlights(ctx context.Context, docID string) ([]highlight.Highlight, []string, error) {
	rec, err := c.Get(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Reduced {
		return rec.Highlights, rec.HighlightOrder, nil
	}
	items := make([]highlight.Highlight, 0, len(rec.Highlights))
	for _, h := range rec.Highlights {
		full, err := c.getHighlight(ctx, docID, h.ID)
		if err != nil {
			c.log.Warn("highlight sub-record missing, keeping reduced form",
				observability.String("id", h.ID), observability.Error("err", err))
			full = h
		}
		items = append(items, full)
	}
	return items, rec.HighlightOrder, nil
}

func (c *Client) getHighlight(ctx context.Context, docID, id string) (highlight.Highlight, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/docs/"+docID+"/highlights/"+id, nil)
	if err != nil {
		return highlight.Highlight{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return highlight.Highlight{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return highlight.Highlight{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return highlight.Highlight{}, err
	}
	var h highlight.Highlight
	if err := sonic.Unmarshal(data, &h); err != nil {
		return highlight.Highlight{}, err
	}
	return h, nil
}

// Subscribe streams full-record snapshots for a document until ctx is
// canceled. Each event on the wire carries the complete record, so the
// caller can always replace local remote-derived state wholesale.
func (c *Client) Subscribe(ctx context.Context, docID string) (<-chan DocRecord, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/docs/"+docID+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("subscribe: status %d", resp.StatusCode)
	}

	ch := make(chan DocRecord)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			var rec DocRecord
			if err := sonic.UnmarshalString(payload, &rec); err != nil {
				c.log.Warn("bad event payload", observability.Error("err", err))
				continue
			}
			select {
			case ch <- rec:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.log.Warn("event stream ended", observability.Error("err", err))
		}
	}()
	return ch, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) error {
	req, err := c.newRequest(ctx, method, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
