// Package overpass queries an Overpass API server and parses the JSON
// output into an element.Dataset.
package overpass

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/omniscale/osmtopo"
	"github.com/omniscale/osmtopo/element"
	"github.com/omniscale/osmtopo/log"

	"github.com/pkg/errors"
)

const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// Cache stores raw responses by key.
type Cache interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, data []byte) error
}

type Client struct {
	endpoint  string
	http      *http.Client
	userAgent string
	cache     Cache
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:  endpoint,
		http:      &http.Client{},
		userAgent: "osmtopo/" + osmtopo.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type QueryError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// Query sends query to the server and parses the response.
func (c *Client) Query(ctx context.Context, query string) (*element.Dataset, error) {
	body, err := c.raw(ctx, query)
	if err != nil {
		return nil, err
	}
	ds, err := ParseJSON(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parsing overpass response")
	}
	return ds, nil
}

// Fetcher returns a function that runs query once per call.
func (c *Client) Fetcher(query string) func(ctx context.Context) (*element.Dataset, error) {
	return func(ctx context.Context) (*element.Dataset, error) {
		return c.Query(ctx, query)
	}
}

func (c *Client) cacheKey(query string) string {
	sum := sha256.Sum256([]byte(c.endpoint + "\n" + query))
	return hex.EncodeToString(sum[:])
}

func (c *Client) raw(ctx context.Context, query string) ([]byte, error) {
	var key string
	if c.cache != nil {
		key = c.cacheKey(query)
		data, ok, err := c.cache.Get(key)
		if err != nil {
			log.Printf("[warn] reading response cache: %s", err)
		} else if ok {
			log.Printf("[debug] using cached response %s", key[:12])
			return data, nil
		}
	}

	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "creating request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "requesting %s", c.endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			body = nil
		}
		return nil, &QueryError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading response")
	}

	if c.cache != nil {
		if err := c.cache.Put(key, body); err != nil {
			log.Printf("[warn] writing response cache: %s", err)
		}
	}
	return body, nil
}
