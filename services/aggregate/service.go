package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sourcegraph/conc/iter"

	"streamgate/internal/cache"
	"streamgate/internal/metrics"
	"streamgate/models"
	"streamgate/services/addon"
)

const (
	defaultRetryDelay  = 500 * time.Millisecond
	defaultManifestTTL = 24 * time.Hour
	defaultStreamTTL   = 5 * time.Minute
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	HTTPClient   *http.Client
	Cache        cache.Cache
	FetchTimeout time.Duration
	RetryDelay   time.Duration
	ManifestTTL  time.Duration
	StreamTTL    time.Duration
	// AddonRequestsPerSecond rate-limits outbound calls per addon; zero
	// disables limiting.
	AddonRequestsPerSecond float64
}

// Service executes content lookups across independently owned, independently
// reliable addons and folds the responses into one merged result.
type Service struct {
	httpClient   *http.Client
	cache        cache.Cache
	fetchTimeout time.Duration
	retryDelay   time.Duration
	manifestTTL  time.Duration
	streamTTL    time.Duration
	addonRPS     float64

	// Clients are reused across lookups so per-addon rate limiters persist.
	mu      sync.Mutex
	clients map[string]*addon.Client
}

// NewService constructs the orchestrator.
func NewService(opts Options) *Service {
	s := &Service{
		httpClient:   opts.HTTPClient,
		cache:        opts.Cache,
		fetchTimeout: opts.FetchTimeout,
		retryDelay:   opts.RetryDelay,
		manifestTTL:  opts.ManifestTTL,
		streamTTL:    opts.StreamTTL,
		addonRPS:     opts.AddonRequestsPerSecond,
		clients:      make(map[string]*addon.Client),
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.fetchTimeout <= 0 {
		s.fetchTimeout = addon.DefaultTimeout
	}
	if s.retryDelay <= 0 {
		s.retryDelay = defaultRetryDelay
	}
	if s.manifestTTL <= 0 {
		s.manifestTTL = defaultManifestTTL
	}
	if s.streamTTL <= 0 {
		s.streamTTL = defaultStreamTTL
	}
	return s
}

// Result is the aggregate view of one lookup at a point in time.
type Result struct {
	Sources          []models.Source `json:"sources"`
	Loading          bool            `json:"loading"`
	FailedAddonNames []string        `json:"failedAddonNames"`
}

// Lookup is a handle on one in-flight content lookup. Updates delivers one
// snapshot per addon settle and is closed once every dispatched call has
// settled or the lookup is cancelled.
type Lookup struct {
	updates chan Result
	cancel  context.CancelFunc
}

// Updates returns the snapshot stream.
func (l *Lookup) Updates() <-chan Result {
	return l.updates
}

// Cancel abandons the lookup. In-flight network calls are allowed to complete
// so they can still warm the response cache, but no further snapshots are
// published.
func (l *Lookup) Cancel() {
	l.cancel()
}

// ValidateAddon fetches and validates the manifest behind a candidate addon
// URL, used by registration before anything is persisted.
func (s *Service) ValidateAddon(ctx context.Context, rawURL string) (*models.AddonManifest, error) {
	client, err := addon.NewClient(models.Addon{Name: rawURL, URL: rawURL}, s.httpClient, addon.WithTimeout(s.fetchTimeout))
	if err != nil {
		return nil, err
	}
	manifest, err := client.Manifest(ctx)
	if err != nil {
		metrics.AddonFetches.WithLabelValues("manifest", fetchOutcome(err)).Inc()
		return nil, err
	}
	metrics.AddonFetches.WithLabelValues("manifest", metrics.OutcomeOK).Inc()
	return manifest, nil
}

// Manifest resolves one addon's manifest, cache-first. Manifests change
// rarely, so entries live for hours.
func (s *Service) Manifest(ctx context.Context, a models.Addon) (*models.AddonManifest, error) {
	key := "manifest:" + a.ID
	var cached models.AddonManifest
	if ok, err := s.cache.Get(key, &cached); err == nil && ok {
		metrics.CacheLookups.WithLabelValues("manifest", "hit").Inc()
		return &cached, nil
	}
	metrics.CacheLookups.WithLabelValues("manifest", "miss").Inc()

	client, err := s.clientFor(a)
	if err != nil {
		return nil, err
	}
	manifest, err := client.Manifest(ctx)
	if err != nil {
		metrics.AddonFetches.WithLabelValues("manifest", fetchOutcome(err)).Inc()
		return nil, err
	}
	metrics.AddonFetches.WithLabelValues("manifest", metrics.OutcomeOK).Inc()
	if err := s.cache.Set(key, manifest, s.manifestTTL); err != nil {
		log.Printf("[aggregate] failed to cache manifest for %s: %v", a.Name, err)
	}
	return manifest, nil
}

// StreamCapable filters the given addons to those whose manifest declares the
// stream capability. Manifests resolve in parallel; input order is preserved.
// Addons whose manifest cannot be resolved are excluded.
func (s *Service) StreamCapable(ctx context.Context, addons []models.Addon) []models.Addon {
	snapshot := enabledByOrder(addons)
	manifests := s.resolveManifests(ctx, snapshot)

	capable := make([]models.Addon, 0, len(snapshot))
	for i, a := range snapshot {
		if manifests[i].err != nil {
			log.Printf("[aggregate] %s manifest unavailable: %v", a.Name, manifests[i].err)
			continue
		}
		if addon.HasStreams(manifests[i].manifest) {
			capable = append(capable, a)
		}
	}
	return capable
}

// CatalogDefs lists the browsable catalogs across the given addons, in addon
// order. Addons without catalogs, with unreachable manifests, or whose
// catalogs all require a search term contribute nothing.
func (s *Service) CatalogDefs(ctx context.Context, addons []models.Addon) []models.CatalogDef {
	snapshot := enabledByOrder(addons)
	manifests := s.resolveManifests(ctx, snapshot)

	var defs []models.CatalogDef
	for i, a := range snapshot {
		if manifests[i].err != nil {
			continue
		}
		defs = append(defs, addon.CatalogDefs(a, manifests[i].manifest)...)
	}
	return defs
}

// FetchCatalogItems resolves a catalog slug against the given addons and
// fetches its listing.
func (s *Service) FetchCatalogItems(ctx context.Context, addons []models.Addon, slug string) ([]models.MediaItem, error) {
	addonID, catalogType, catalogID, ok := addon.DecodeCatalogSlug(slug)
	if !ok {
		return nil, &addon.ValidationError{Reason: fmt.Sprintf("malformed catalog slug %q", slug)}
	}

	var owner *models.Addon
	for i := range addons {
		if addons[i].ID == addonID {
			owner = &addons[i]
			break
		}
	}
	if owner == nil {
		return nil, &addon.ValidationError{Reason: "catalog slug names an unknown addon"}
	}

	client, err := s.clientFor(*owner)
	if err != nil {
		return nil, err
	}
	resp, err := client.Catalog(ctx, catalogType, catalogID)
	if err != nil {
		metrics.AddonFetches.WithLabelValues("catalog", fetchOutcome(err)).Inc()
		return nil, err
	}
	metrics.AddonFetches.WithLabelValues("catalog", metrics.OutcomeOK).Inc()
	return resp.Metas, nil
}

// Start begins one content lookup across the enabled addons and returns a
// handle delivering progressive snapshots. Validation failures surface
// immediately; per-addon failures never do.
func (s *Service) Start(ctx context.Context, req models.ContentRequest, addons []models.Addon) (*Lookup, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	snapshot := enabledByOrder(addons)
	lookupCtx, cancel := context.WithCancel(ctx)
	l := &Lookup{
		// Buffered past the worst case so publishing never blocks on an
		// abandoned consumer.
		updates: make(chan Result, len(snapshot)+2),
		cancel:  cancel,
	}
	go s.run(lookupCtx, req, snapshot, l.updates)
	return l, nil
}

// Aggregate runs a lookup to completion and returns the final merged result.
// Every addon failing is valid output, not an error.
func (s *Service) Aggregate(ctx context.Context, req models.ContentRequest, addons []models.Addon) (Result, error) {
	lookup, err := s.Start(ctx, req, addons)
	if err != nil {
		return Result{}, err
	}
	defer lookup.Cancel()

	last := Result{Sources: []models.Source{}, Loading: true, FailedAddonNames: []string{}}
	for snapshot := range lookup.Updates() {
		last = snapshot
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	metrics.SourcesReturned.Add(float64(len(last.Sources)))
	return last, nil
}

type resolvedManifest struct {
	manifest *models.AddonManifest
	err      error
}

func (s *Service) resolveManifests(ctx context.Context, addons []models.Addon) []resolvedManifest {
	return iter.Map(addons, func(a *models.Addon) resolvedManifest {
		manifest, err := s.Manifest(ctx, *a)
		return resolvedManifest{manifest: manifest, err: err}
	})
}

// run drives one lookup: phase 1 resolves manifests and filters to
// stream-capable addons, phase 2 fans out stream fetches and folds settles
// into published snapshots.
func (s *Service) run(ctx context.Context, req models.ContentRequest, snapshot []models.Addon, updates chan Result) {
	defer close(updates)

	manifests := s.resolveManifests(ctx, snapshot)

	acc := newAccumulator()
	var dispatch []models.Addon
	for i, a := range snapshot {
		switch {
		case manifests[i].err != nil:
			log.Printf("[aggregate] %s manifest unavailable: %v", a.Name, manifests[i].err)
			acc.fail(a.Name)
		case addon.HasStreams(manifests[i].manifest):
			acc.expect(a)
			dispatch = append(dispatch, a)
		default:
			// Declares no stream resource; it could never answer.
		}
	}

	if len(dispatch) == 0 {
		publish(ctx, updates, acc.snapshot(false))
		return
	}

	events := make(chan settleEvent, len(dispatch))
	for _, a := range dispatch {
		go s.fetchAndSettle(ctx, a, req, events)
	}

	outstanding := len(dispatch)
	for outstanding > 0 {
		select {
		case <-ctx.Done():
			// Superseded: late settles must not resurrect into a stale view.
			return
		case ev := <-events:
			outstanding--
			acc.apply(ev)
			publish(ctx, updates, acc.snapshot(outstanding > 0))
		}
	}
}

type settleEvent struct {
	addon   models.Addon
	sources []models.Source
	err     error
}

// fetchAndSettle resolves one addon's streams: cache first, then a live fetch
// with at most one retry for transient failures. The network call runs on a
// detached context so a superseded lookup still warms the shared cache.
func (s *Service) fetchAndSettle(ctx context.Context, a models.Addon, req models.ContentRequest, events chan<- settleEvent) {
	cacheKey := fmt.Sprintf("streams:%s:%s", a.ID, req.Key())
	var cached models.StreamResponse
	if ok, err := s.cache.Get(cacheKey, &cached); err == nil && ok {
		metrics.CacheLookups.WithLabelValues("streams", "hit").Inc()
		events <- settleEvent{addon: a, sources: addon.ParseStreams(cached.Streams, a)}
		return
	}
	metrics.CacheLookups.WithLabelValues("streams", "miss").Inc()

	client, err := s.clientFor(a)
	if err != nil {
		events <- settleEvent{addon: a, err: err}
		return
	}

	fetchCtx := context.WithoutCancel(ctx)
	var resp *models.StreamResponse
	err = retry.Do(
		func() error {
			r, fetchErr := client.Streams(fetchCtx, req)
			if fetchErr != nil {
				return fetchErr
			}
			resp = r
			return nil
		},
		retry.Attempts(2),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	if err != nil {
		log.Printf("[aggregate] %s stream fetch failed for %s: %v", a.Name, req.Key(), err)
		metrics.AddonFetches.WithLabelValues("stream", fetchOutcome(err)).Inc()
		events <- settleEvent{addon: a, err: err}
		return
	}
	metrics.AddonFetches.WithLabelValues("stream", metrics.OutcomeOK).Inc()

	if err := s.cache.Set(cacheKey, resp, s.streamTTL); err != nil {
		log.Printf("[aggregate] failed to cache streams for %s: %v", a.Name, err)
	}
	events <- settleEvent{addon: a, sources: addon.ParseStreams(resp.Streams, a)}
}

func (s *Service) clientFor(a models.Addon) (*addon.Client, error) {
	key := a.ID + "|" + a.URL
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[key]; ok {
		return client, nil
	}
	client, err := addon.NewClient(a, s.httpClient,
		addon.WithTimeout(s.fetchTimeout),
		addon.WithRateLimit(s.addonRPS),
	)
	if err != nil {
		return nil, err
	}
	s.clients[key] = client
	return client, nil
}

// isTransient reports whether a fetch failure is worth the single retry.
// Timeouts and transport-level failures qualify; an addon that answered with a
// bad status or shape will answer the same way again, and validation problems
// never reach the network.
func isTransient(err error) bool {
	var protoErr *addon.ProtocolError
	if errors.As(err, &protoErr) {
		return protoErr.Transient
	}
	return false
}

func fetchOutcome(err error) string {
	var timeoutErr *addon.TimeoutError
	if errors.As(err, &timeoutErr) {
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}

// enabledByOrder snapshots the enabled addons sorted by configured precedence.
// Lookups already in flight keep the snapshot they started with; config
// changes only affect subsequent dispatches.
func enabledByOrder(addons []models.Addon) []models.Addon {
	snapshot := make([]models.Addon, 0, len(addons))
	for _, a := range addons {
		if a.Enabled {
			snapshot = append(snapshot, a)
		}
	}
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].Order < snapshot[j].Order
	})
	return snapshot
}

func validateRequest(req models.ContentRequest) error {
	if strings.TrimSpace(req.ExternalID) == "" {
		return &addon.ValidationError{Reason: "external id is required"}
	}
	switch req.Kind {
	case models.MediaKindMovie:
		return nil
	case models.MediaKindShow:
		if req.Season < 1 || req.Episode < 1 {
			return &addon.ValidationError{Reason: fmt.Sprintf("season and episode must be >= 1, got S%dE%d", req.Season, req.Episode)}
		}
		return nil
	default:
		return &addon.ValidationError{Reason: fmt.Sprintf("unknown media kind %q", req.Kind)}
	}
}

func publish(ctx context.Context, updates chan Result, snapshot Result) {
	select {
	case <-ctx.Done():
	case updates <- snapshot:
	}
}
