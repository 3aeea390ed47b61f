package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	orphansPath  = "/api/catalog/entities?filter=metadata.annotations.backstage.io/orphan=true"
	deleteByUID  = "/api/catalog/entities/by-uid/"
	jsonMimeType = "application/json"
)

// BuildHeaders returns the headers sent with every catalog request. The
// Authorization header is only present when apiKey is set.
func BuildHeaders(apiKey string) http.Header {
	h := http.Header{}
	h.Set("Accept", jsonMimeType)
	if apiKey = strings.TrimSpace(apiKey); apiKey != "" {
		h.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}
	return h
}

// NormalizeBaseURL strips trailing slashes.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}

type Client struct {
	baseURL         string
	headers         http.Header
	requestIDHeader string
	httpClient      *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestIDHeader makes every request carry the named header with a
// fresh uuidv4.
func WithRequestIDHeader(name string) ClientOption {
	return func(c *Client) {
		c.requestIDHeader = strings.TrimSpace(name)
	}
}

func NewClient(baseURL string, headers http.Header, opts ...ClientOption) *Client {
	if headers == nil {
		headers = BuildHeaders("")
	}
	c := &Client{
		baseURL:    NormalizeBaseURL(baseURL),
		headers:    headers.Clone(),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	hc.CheckRedirect = noRedirects
	c.httpClient = &hc
	return c
}

// noRedirects returns 3xx responses as-is so the status checks see them.
func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range c.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if c.requestIDHeader != "" {
		req.Header.Set(c.requestIDHeader, uuid.NewString())
	}
	return req, nil
}

// Orphan is one item of the orphan listing: the decoded entity plus the raw
// JSON as the catalog sent it.
type Orphan struct {
	Entity Entity
	Raw    json.RawMessage
}

// FetchOrphans lists every entity carrying the orphan annotation, in the
// order the catalog returns them.
func (c *Client) FetchOrphans(ctx context.Context) ([]Orphan, error) {
	endpoint := c.baseURL + orphansPath

	req, err := c.newRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, &FetchError{Stage: StageFetch, URL: endpoint, Reason: err.Error(), Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Stage: StageFetch, URL: endpoint, Reason: transportReason(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			Stage:      StageFetch,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Reason:     reasonPhrase(resp),
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		err = errors.Wrap(err, "read response body")
		return nil, &FetchError{Stage: StageFetch, URL: endpoint, Reason: err.Error(), Err: err}
	}

	data, err := decodeJSON(payload)
	if err != nil {
		return nil, &FetchError{Stage: StageParse, URL: endpoint, Reason: err.Error(), Err: err}
	}

	items, ok := data.([]any)
	if !ok {
		return nil, &FetchError{
			Stage:  StageShape,
			URL:    endpoint,
			Reason: fmt.Sprintf("expected list, got %s", jsonTypeName(data)),
		}
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, &FetchError{Stage: StageParse, URL: endpoint, Reason: err.Error(), Err: err}
	}

	orphans := make([]Orphan, len(items))
	for i, item := range items {
		orphans[i].Raw = raws[i]
		if obj, ok := item.(map[string]any); ok {
			orphans[i].Entity = Entity(obj)
		}
	}
	return orphans, nil
}

// DeleteOrphan removes a single entity. Any status >= 300 is a failure.
func (c *Client) DeleteOrphan(ctx context.Context, uid string) error {
	endpoint := c.baseURL + deleteByUID + url.PathEscape(uid)

	req, err := c.newRequest(ctx, http.MethodDelete, endpoint)
	if err != nil {
		return &DeleteError{UID: uid, URL: endpoint, Reason: err.Error(), Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &DeleteError{UID: uid, URL: endpoint, Reason: transportReason(err), Err: err}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &DeleteError{
			UID:        uid,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Reason:     reasonPhrase(resp),
		}
	}
	return nil
}

func decodeJSON(payload []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	return data, nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case string:
		return "string"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func transportReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err.Error()
	}
	return err.Error()
}
