package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/schaermu/ecm/internal/component"
)

// maxBodySize caps descriptor and source downloads (8 MB)
const maxBodySize = 8 << 20

// ErrNetwork is wrapped by every NetworkError
var ErrNetwork = errors.New("network error")

// NetworkError reports a failed fetch
type NetworkError struct {
	URL    string
	Status int // HTTP status, 0 when no response was received
	Err    error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrNetwork, e.Err}
	}
	return []error{ErrNetwork}
}

// ErrBodyTooLarge is returned for responses larger than maxBodySize
var ErrBodyTooLarge = errors.New("body exceeds 8 MB")

// ErrLocalReference is returned when a remote descriptor points at a file:// URL
var ErrLocalReference = errors.New("file URL referenced from a remote descriptor")

// CheckReference reports whether ref, a source or requirement URL found in
// the descriptor at parent, may be fetched. file:// references are only
// followed from descriptors that are themselves local.
func CheckReference(parent, ref string) error {
	if !isFileURL(ref) || isFileURL(parent) {
		return nil
	}
	return &NetworkError{URL: ref, Err: ErrLocalReference}
}

func isFileURL(raw string) bool {
	u, err := neturl.Parse(raw)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(raw), "file:")
	}
	return strings.EqualFold(u.Scheme, "file")
}

// Fetcher retrieves remote documents
type Fetcher interface {
	// Get returns the body of url
	Get(ctx context.Context, url string) ([]byte, error)
}

// Observer is notified after every fetch; used for metrics
type Observer interface {
	ObserveFetch(kind string, err error, d time.Duration)
}

// HTTPClient implements Fetcher over net/http. file:// URLs are served from
// the local filesystem so that a registry can live in a plain directory.
type HTTPClient struct {
	client    *http.Client
	userAgent string
	observer  Observer
}

// NewHTTPClient creates a fetcher with the given request timeout
func NewHTTPClient(timeout time.Duration, userAgent string) *HTTPClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))

	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgent: userAgent,
	}
}

// WithObserver attaches a fetch observer
func (c *HTTPClient) WithObserver(o Observer) *HTTPClient {
	c.observer = o
	return c
}

// Get performs a GET request and returns the body
func (c *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, span := otel.Tracer("github.com/schaermu/ecm/internal/fetch").Start(ctx, "fetch.Get")
	span.SetAttributes(attribute.String("url", url))
	defer span.End()

	start := time.Now()
	body, err := c.get(ctx, url)
	if c.observer != nil {
		c.observer.ObserveFetch("get", err, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("bytes", len(body)))
	return body, nil
}

func (c *HTTPClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &NetworkError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if len(body) > maxBodySize {
		return nil, &NetworkError{URL: url, Err: ErrBodyTooLarge}
	}
	return body, nil
}

// Descriptor fetches and validates the descriptor at url
func Descriptor(ctx context.Context, f Fetcher, url string) (component.Descriptor, error) {
	data, err := f.Get(ctx, url)
	if err != nil {
		return component.Descriptor{}, err
	}
	return component.DecodeDescriptor(url, data)
}

// PartialDescriptor fetches the descriptor at url without requiring any
// field to be present.
func PartialDescriptor(ctx context.Context, f Fetcher, url string) (component.Descriptor, error) {
	data, err := f.Get(ctx, url)
	if err != nil {
		return component.Descriptor{}, err
	}
	return component.ParseDescriptor(url, data)
}

// Text fetches url as a text document
func Text(ctx context.Context, f Fetcher, url string) (string, error) {
	data, err := f.Get(ctx, url)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
