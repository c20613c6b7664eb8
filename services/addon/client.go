package addon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"streamgate/models"
)

// DefaultTimeout bounds every addon request. Community addons routinely sit
// behind slow resolvers, so the default is generous; callers tune it down via
// WithTimeout.
const DefaultTimeout = 3 * time.Minute

// Client speaks the stream-addon wire protocol for exactly one addon. It is
// stateless and safe for concurrent use.
type Client struct {
	addon      models.Addon
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Option tunes a Client.
type Option func(*Client)

// WithTimeout overrides the per-request bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit caps outbound requests to this addon at rps per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewClient builds a client for the given addon registration. The addon URL is
// normalized by stripping a trailing /manifest.json suffix and any trailing
// slash; an empty or unparseable URL yields a ConfigError.
func NewClient(a models.Addon, httpc *http.Client, opts ...Option) (*Client, error) {
	base, err := NormalizeURL(a.URL)
	if err != nil {
		return nil, err
	}
	if httpc == nil {
		httpc = http.DefaultClient
	}
	c := &Client{
		addon:      a,
		baseURL:    base,
		httpClient: httpc,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NormalizeURL canonicalizes an addon base URL. Users paste manifest URLs as
// often as bare bases, so the /manifest.json suffix is accepted and dropped.
func NormalizeURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &ConfigError{Reason: "addon url is required"}
	}
	trimmed = strings.TrimSuffix(trimmed, "/manifest.json")
	trimmed = strings.TrimSuffix(trimmed, "/")
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", &ConfigError{Reason: fmt.Sprintf("addon url %q is not a valid http(s) url", raw)}
	}
	return trimmed, nil
}

// Addon returns the registration this client speaks for.
func (c *Client) Addon() models.Addon {
	return c.addon
}

// BaseURL returns the normalized addon base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Manifest fetches and validates {base}/manifest.json.
func (c *Client) Manifest(ctx context.Context) (*models.AddonManifest, error) {
	const op = "manifest"
	body, err := c.getJSON(ctx, op, c.baseURL+"/manifest.json", true)
	if err != nil {
		return nil, err
	}

	var manifest models.AddonManifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, c.protocolErr(op, 0, fmt.Sprintf("decode manifest: %v", err))
	}
	if strings.TrimSpace(manifest.ID) == "" || strings.TrimSpace(manifest.Name) == "" {
		return nil, c.protocolErr(op, 0, "manifest is missing required id/name fields")
	}
	return &manifest, nil
}

// MovieStreams fetches {base}/stream/movie/{externalID}.json.
func (c *Client) MovieStreams(ctx context.Context, externalID string) (*models.StreamResponse, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, &ValidationError{Reason: "external id is required"}
	}
	return c.fetchStreams(ctx, "movie", externalID)
}

// SeriesStreams fetches {base}/stream/series/{externalID}:{season}:{episode}.json.
func (c *Client) SeriesStreams(ctx context.Context, externalID string, season, episode int) (*models.StreamResponse, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, &ValidationError{Reason: "external id is required"}
	}
	if season < 1 || episode < 1 {
		return nil, &ValidationError{Reason: fmt.Sprintf("season and episode must be >= 1, got S%dE%d", season, episode)}
	}
	return c.fetchStreams(ctx, "series", fmt.Sprintf("%s:%d:%d", externalID, season, episode))
}

// Streams dispatches to MovieStreams or SeriesStreams by the request's kind.
func (c *Client) Streams(ctx context.Context, req models.ContentRequest) (*models.StreamResponse, error) {
	switch req.Kind {
	case models.MediaKindMovie:
		return c.MovieStreams(ctx, req.ExternalID)
	case models.MediaKindShow:
		if req.Season == 0 && req.Episode == 0 {
			return nil, &ValidationError{Reason: "season and episode are required for shows"}
		}
		return c.SeriesStreams(ctx, req.ExternalID, req.Season, req.Episode)
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown media kind %q", req.Kind)}
	}
}

// Catalog fetches {base}/catalog/{catalogType}/{catalogID}.json.
func (c *Client) Catalog(ctx context.Context, catalogType, catalogID string) (*models.CatalogResponse, error) {
	const op = "catalog"
	catalogType = strings.TrimSpace(catalogType)
	catalogID = strings.TrimSpace(catalogID)
	if catalogType == "" || catalogID == "" {
		return nil, &ValidationError{Reason: "catalog type and id are required"}
	}

	endpoint := fmt.Sprintf("%s/catalog/%s/%s.json", c.baseURL, url.PathEscape(catalogType), url.PathEscape(catalogID))
	body, err := c.getJSON(ctx, op, endpoint, false)
	if err != nil {
		return nil, err
	}

	var payload models.CatalogResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.protocolErr(op, 0, fmt.Sprintf("decode catalog response: %v", err))
	}
	if payload.Metas == nil {
		payload.Metas = []models.MediaItem{}
	}
	return &payload, nil
}

func (c *Client) fetchStreams(ctx context.Context, wireType, wireID string) (*models.StreamResponse, error) {
	const op = "stream"
	endpoint := fmt.Sprintf("%s/stream/%s/%s.json", c.baseURL, wireType, url.PathEscape(wireID))
	body, err := c.getJSON(ctx, op, endpoint, false)
	if err != nil {
		return nil, err
	}

	// Decode through a pointer so a response without a streams array is
	// distinguishable from an empty one.
	var payload struct {
		Streams *[]models.RawStream `json:"streams"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, c.protocolErr(op, 0, fmt.Sprintf("decode stream response: %v", err))
	}
	if payload.Streams == nil {
		return nil, c.protocolErr(op, 0, "response has no streams array")
	}
	return &models.StreamResponse{Streams: *payload.Streams}, nil
}

// getJSON performs one bounded GET and returns the body. When requireJSON is
// set, a response whose Content-Type is not JSON fails even if the body would
// parse: static hosts answer unknown paths with HTML splash pages and a 200.
func (c *Client) getJSON(ctx context.Context, op, endpoint string, requireJSON bool) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.wrapTransportErr(op, err)
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("build request for %s: %v", endpoint, err)}
	}
	addBrowserHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.wrapTransportErr(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, c.protocolErr(op, resp.StatusCode, strings.TrimSpace(string(preview)))
	}

	if requireJSON && !isJSONContentType(resp.Header.Get("Content-Type")) {
		return nil, c.protocolErr(op, resp.StatusCode, fmt.Sprintf("unexpected content type %q", resp.Header.Get("Content-Type")))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.wrapTransportErr(op, err)
	}
	return body, nil
}

func (c *Client) wrapTransportErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{ProtocolError: ProtocolError{
			AddonName: c.addon.Name,
			AddonURL:  c.addon.URL,
			Op:        op,
			Reason:    fmt.Sprintf("no response within %s", c.timeout),
			Transient: true,
		}}
	}
	return &ProtocolError{
		AddonName: c.addon.Name,
		AddonURL:  c.addon.URL,
		Op:        op,
		Reason:    err.Error(),
		Transient: true,
	}
}

func (c *Client) protocolErr(op string, status int, reason string) error {
	return &ProtocolError{
		AddonName:  c.addon.Name,
		AddonURL:   c.addon.URL,
		Op:         op,
		StatusCode: status,
		Reason:     reason,
	}
}

func isJSONContentType(value string) bool {
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// addBrowserHeaders makes requests look like a desktop browser navigation.
// Addons frequently run behind static/edge hosting that varies behavior by
// these headers, so they are sent even though the response is always JSON.
func addBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "application/json,text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	// Accept-Encoding is left to Go's transport so decompression stays automatic.
	req.Header.Set("DNT", "1")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
}
