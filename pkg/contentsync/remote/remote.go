// Package remote provides HTTP implementations of the contentsync remote
// collaborator interfaces: manifest fetching, blob fetching and event upload.
//
// All clients share the same construction style: a base URL, an optional
// *http.Client (a default with a 30s timeout otherwise) and an optional API
// key sent as a bearer token. Transport-level failures and non-2xx responses
// other than 404 map to contentsync.ErrNetworkFailure so callers can detect
// transient conditions with errors.Is.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/breffi/content-sync/pkg/contentsync"
)

const defaultTimeout = 30 * time.Second

// ClientOption customizes a remote client.
type ClientOption func(*client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *client) { c.http = hc }
}

// WithAPIKey sets a bearer token added to every request.
func WithAPIKey(key string) ClientOption {
	return func(c *client) { c.apiKey = key }
}

type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL string, opts ...ClientOption) client {
	c := client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contentsync.ErrNetworkFailure, err)
	}
	return resp, nil
}

func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body)
	body.Close()
}

// ManifestClient fetches revision manifests over HTTP.
type ManifestClient struct {
	client
}

// NewManifestClient creates a ManifestFetcher talking to the given base URL.
func NewManifestClient(baseURL string, opts ...ClientOption) *ManifestClient {
	return &ManifestClient{client: newClient(baseURL, opts...)}
}

// FetchManifest retrieves the manifest for the given scope. The server is
// expected to return entries in parent-before-child order.
func (c *ManifestClient) FetchManifest(ctx context.Context, scope contentsync.ManifestScope) ([]contentsync.ManifestEntry, error) {
	query := url.Values{}
	if scope.ClientID != 0 {
		query.Set("client_id", strconv.FormatInt(scope.ClientID, 10))
	}
	if scope.PresentationID != 0 {
		query.Set("presentation_id", strconv.FormatInt(scope.PresentationID, 10))
	}

	resp, err := c.get(ctx, "/manifest", query)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: manifest fetch returned status %d", contentsync.ErrNetworkFailure, resp.StatusCode)
	}

	var entries []contentsync.ManifestEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return entries, nil
}

// BlobClient fetches blob payloads over HTTP.
type BlobClient struct {
	client
}

// NewBlobClient creates a BlobFetcher talking to the given base URL.
func NewBlobClient(baseURL string, opts ...ClientOption) *BlobClient {
	return &BlobClient{client: newClient(baseURL, opts...)}
}

// FetchBlob retrieves one blob payload by identifier. The caller owns the
// returned body and must close it.
func (c *BlobClient) FetchBlob(ctx context.Context, blobID string) (*contentsync.Blob, error) {
	resp, err := c.get(ctx, "/blobs/"+url.PathEscape(blobID), nil)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		drainAndClose(resp.Body)
		return nil, fmt.Errorf("blob %q: %w", blobID, contentsync.ErrBlobNotFound)
	default:
		drainAndClose(resp.Body)
		return nil, fmt.Errorf("%w: blob fetch returned status %d", contentsync.ErrNetworkFailure, resp.StatusCode)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &contentsync.Blob{
		Body:     resp.Body,
		MimeType: mimeType,
		Size:     resp.ContentLength,
	}, nil
}

// EventClient uploads analytics event batches over HTTP.
type EventClient struct {
	client
}

// NewEventClient creates an EventUploader talking to the given base URL.
func NewEventClient(baseURL string, opts ...ClientOption) *EventClient {
	return &EventClient{client: newClient(baseURL, opts...)}
}

type eventUploadResponse struct {
	Accepted []string `json:"accepted"`
}

// UploadEvents posts a batch of events and returns the ids the collector
// accepted. The collector deduplicates by event id, so re-sending a batch
// after a lost acknowledgement is safe.
func (c *EventClient) UploadEvents(ctx context.Context, events []*contentsync.CustomEvent) ([]string, error) {
	payload, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contentsync.ErrNetworkFailure, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: event upload returned status %d", contentsync.ErrNetworkFailure, resp.StatusCode)
	}

	var out eventUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return out.Accepted, nil
}
