package aggregate

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamgate/internal/cache"
	"streamgate/models"
	"streamgate/services/addon"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type hostHandler func(req *http.Request) (*http.Response, error)

// newRig builds a Service whose HTTP traffic is routed to per-host handlers,
// one host per fake addon.
func newRig(hosts map[string]hostHandler) *Service {
	transport := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		handler, ok := hosts[req.URL.Host]
		if !ok {
			return nil, errors.New("unexpected host " + req.URL.Host)
		}
		return handler(req)
	})
	return NewService(Options{
		HTTPClient:   &http.Client{Transport: transport},
		Cache:        cache.NewMemory(),
		FetchTimeout: 5 * time.Second,
		RetryDelay:   time.Millisecond,
	})
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

const streamManifest = `{"id":"org.test","name":"Test","resources":["stream"],"types":["movie","series"]}`

// streamAddonHost answers the manifest endpoint with a stream-capable manifest
// and delegates stream requests to fn.
func streamAddonHost(fn hostHandler) hostHandler {
	return func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/manifest.json") {
			return jsonResponse(http.StatusOK, streamManifest), nil
		}
		return fn(req)
	}
}

func streamsBody(raws string) string {
	return `{"streams":[` + raws + `]}`
}

func movieRequest() models.ContentRequest {
	return models.ContentRequest{ExternalID: "tt0133093", Kind: models.MediaKindMovie}
}

func TestAggregateMergesCachedFirst(t *testing.T) {
	hosts := map[string]hostHandler{
		"a.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(
				`{"name":"A plain","title":"a1"},{"name":"A ⚡ cached","title":"a2"}`)), nil
		}),
		"b.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"B plain","title":"b1"}`)), nil
		}),
	}
	svc := newRig(hosts)

	// B has the lower precedence number, so it dispatches ahead of A.
	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true, Order: 1},
		{ID: "b", Name: "Beta", URL: "http://b.test", Enabled: true, Order: 0},
	}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.False(t, result.Loading)
	require.Empty(t, result.FailedAddonNames)

	titles := make([]string, 0, len(result.Sources))
	for _, src := range result.Sources {
		titles = append(titles, src.Title)
	}
	// Cached first; within each partition, dispatch order with per-addon
	// response order preserved.
	require.Equal(t, []string{"A ⚡ cached", "B plain", "A plain"}, titles)
}

func TestAggregateSkipsDisabledAddons(t *testing.T) {
	var disabledHit atomic.Int32
	hosts := map[string]hostHandler{
		"a.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"A"}`)), nil
		}),
		"off.test": func(req *http.Request) (*http.Response, error) {
			disabledHit.Add(1)
			return jsonResponse(http.StatusOK, streamManifest), nil
		},
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true},
		{ID: "off", Name: "Disabled", URL: "http://off.test", Enabled: false},
	}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Zero(t, disabledHit.Load(), "disabled addon must never be queried")
}

func TestAggregateIsolatesFailures(t *testing.T) {
	hosts := map[string]hostHandler{
		"a.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"A"}`)), nil
		}),
		"broken.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusInternalServerError, `boom`), nil
		}),
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true},
		{ID: "c", Name: "Cranky", URL: "http://broken.test", Enabled: true, Order: 1},
	}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err, "one addon failing must not fail the lookup")
	require.Len(t, result.Sources, 1)
	require.Equal(t, []string{"Cranky"}, result.FailedAddonNames)
}

func TestAggregateAllFailedIsValid(t *testing.T) {
	broken := streamAddonHost(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `nope`), nil
	})
	hosts := map[string]hostHandler{"a.test": broken, "b.test": broken}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Zulu", URL: "http://a.test", Enabled: true},
		{ID: "b", Name: "Alpha", URL: "http://b.test", Enabled: true, Order: 1},
	}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Empty(t, result.Sources)
	require.Equal(t, []string{"Alpha", "Zulu"}, result.FailedAddonNames, "failed names are reported sorted")
}

func TestManifestFailureRecordsAddon(t *testing.T) {
	var streamHits atomic.Int32
	hosts := map[string]hostHandler{
		"a.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"A"}`)), nil
		}),
		"gone.test": func(req *http.Request) (*http.Response, error) {
			if strings.HasSuffix(req.URL.Path, "/manifest.json") {
				return jsonResponse(http.StatusNotFound, `missing`), nil
			}
			streamHits.Add(1)
			return jsonResponse(http.StatusOK, streamsBody(``)), nil
		},
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true},
		{ID: "g", Name: "Ghost", URL: "http://gone.test", Enabled: true, Order: 1},
	}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Equal(t, []string{"Ghost"}, result.FailedAddonNames)
	require.Zero(t, streamHits.Load(), "an addon without a manifest must not be asked for streams")
}

// An addon that declares no stream resource could never answer; it is excluded
// without being counted as failed.
func TestNonStreamAddonSilentlyExcluded(t *testing.T) {
	hosts := map[string]hostHandler{
		"a.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"A"}`)), nil
		}),
		"catalog.test": func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"id":"org.cat","name":"CatalogOnly","resources":["catalog"]}`), nil
		},
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true},
		{ID: "c", Name: "CatalogOnly", URL: "http://catalog.test", Enabled: true, Order: 1},
	}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Empty(t, result.FailedAddonNames)
}

func TestTransientFailureRetriedOnce(t *testing.T) {
	var attempts atomic.Int32
	hosts := map[string]hostHandler{
		"flaky.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("connection reset by peer")
			}
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"Recovered"}`)), nil
		}),
	}
	svc := newRig(hosts)

	addons := []models.Addon{{ID: "f", Name: "Flaky", URL: "http://flaky.test", Enabled: true}}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Len(t, result.Sources, 1)
	require.Empty(t, result.FailedAddonNames)
	require.Equal(t, int32(2), attempts.Load())
}

func TestOneAddonTimingOutDoesNotHoldBackTheRest(t *testing.T) {
	var attempts atomic.Int32
	hosts := map[string]hostHandler{
		"a.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"A"}`)), nil
		}),
		"b.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"B"}`)), nil
		}),
		"stuck.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			attempts.Add(1)
			return nil, context.DeadlineExceeded
		}),
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true},
		{ID: "b", Name: "Beta", URL: "http://b.test", Enabled: true, Order: 1},
		{ID: "s", Name: "Stuck", URL: "http://stuck.test", Enabled: true, Order: 2},
	}

	lookup, err := svc.Start(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	defer lookup.Cancel()

	var snapshots []Result
	for snapshot := range lookup.Updates() {
		snapshots = append(snapshots, snapshot)
	}
	require.Len(t, snapshots, 3, "one snapshot per settle")

	// The healthy addons' sources were observable while the lookup was still
	// loading.
	require.True(t, snapshots[0].Loading)
	require.True(t, snapshots[1].Loading)
	require.NotEmpty(t, snapshots[1].Sources)

	final := snapshots[2]
	require.False(t, final.Loading)
	require.Len(t, final.Sources, 2)
	require.Equal(t, []string{"Stuck"}, final.FailedAddonNames)
	require.Equal(t, int32(2), attempts.Load(), "timeouts get the single retry")
}

func TestProtocolFailureNotRetried(t *testing.T) {
	var attempts atomic.Int32
	hosts := map[string]hostHandler{
		"broken.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			attempts.Add(1)
			return jsonResponse(http.StatusInternalServerError, `boom`), nil
		}),
	}
	svc := newRig(hosts)

	addons := []models.Addon{{ID: "b", Name: "Broken", URL: "http://broken.test", Enabled: true}}

	result, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Equal(t, []string{"Broken"}, result.FailedAddonNames)
	require.Equal(t, int32(1), attempts.Load(), "an addon that answered wrong will answer wrong again")
}

func TestProgressiveSnapshots(t *testing.T) {
	gate := make(chan struct{})
	hosts := map[string]hostHandler{
		"fast.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"Fast"}`)), nil
		}),
		"slow.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			<-gate
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"Slow"}`)), nil
		}),
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "f", Name: "Fast", URL: "http://fast.test", Enabled: true},
		{ID: "s", Name: "Slow", URL: "http://slow.test", Enabled: true, Order: 1},
	}

	lookup, err := svc.Start(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	defer lookup.Cancel()

	first, open := <-lookup.Updates()
	require.True(t, open)
	require.True(t, first.Loading, "a snapshot must arrive before the slow addon settles")
	require.Len(t, first.Sources, 1)
	require.Equal(t, "Fast", first.Sources[0].Title)

	close(gate)

	final, open := <-lookup.Updates()
	require.True(t, open)
	require.False(t, final.Loading)
	require.Len(t, final.Sources, 2)

	_, open = <-lookup.Updates()
	require.False(t, open, "updates must close after the last settle")
}

func TestCancelStopsSnapshots(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	hosts := map[string]hostHandler{
		"fast.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"Fast"}`)), nil
		}),
		"slow.test": streamAddonHost(func(req *http.Request) (*http.Response, error) {
			<-gate
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"Slow"}`)), nil
		}),
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "f", Name: "Fast", URL: "http://fast.test", Enabled: true},
		{ID: "s", Name: "Slow", URL: "http://slow.test", Enabled: true, Order: 1},
	}

	lookup, err := svc.Start(context.Background(), movieRequest(), addons)
	require.NoError(t, err)

	first := <-lookup.Updates()
	require.True(t, first.Loading)

	lookup.Cancel()

	// No complete snapshot may be delivered after cancellation; the channel
	// drains and closes.
	for snapshot := range lookup.Updates() {
		require.True(t, snapshot.Loading, "cancelled lookup must not publish a final snapshot")
	}
}

func TestSecondLookupServedFromCache(t *testing.T) {
	var requests atomic.Int32
	hosts := map[string]hostHandler{
		"a.test": func(req *http.Request) (*http.Response, error) {
			requests.Add(1)
			if strings.HasSuffix(req.URL.Path, "/manifest.json") {
				return jsonResponse(http.StatusOK, streamManifest), nil
			}
			return jsonResponse(http.StatusOK, streamsBody(`{"name":"A"}`)), nil
		},
	}
	svc := newRig(hosts)

	addons := []models.Addon{{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true}}

	first, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Len(t, first.Sources, 1)
	afterFirst := requests.Load()
	require.Equal(t, int32(2), afterFirst) // manifest + streams

	second, err := svc.Aggregate(context.Background(), movieRequest(), addons)
	require.NoError(t, err)
	require.Equal(t, first.Sources, second.Sources)
	require.Equal(t, afterFirst, requests.Load(), "repeat lookup must be answered from cache")
}

func TestStartValidatesRequest(t *testing.T) {
	svc := newRig(nil)

	cases := []models.ContentRequest{
		{Kind: models.MediaKindMovie},                                          // missing id
		{ExternalID: "tt1", Kind: models.MediaKindShow},                        // missing season/episode
		{ExternalID: "tt1", Kind: models.MediaKindShow, Season: 1, Episode: 0}, // bad episode
		{ExternalID: "tt1", Kind: "radio"},                                     // unknown kind
	}
	for i, req := range cases {
		_, err := svc.Start(context.Background(), req, nil)
		var validationErr *addon.ValidationError
		require.ErrorAs(t, err, &validationErr, "case %d", i)
	}
}

func TestStreamCapable(t *testing.T) {
	hosts := map[string]hostHandler{
		"a.test": func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamManifest), nil
		},
		"catalog.test": func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"id":"org.cat","name":"CatalogOnly","resources":["catalog"]}`), nil
		},
	}
	svc := newRig(hosts)

	addons := []models.Addon{
		{ID: "a", Name: "Alpha", URL: "http://a.test", Enabled: true},
		{ID: "c", Name: "CatalogOnly", URL: "http://catalog.test", Enabled: true, Order: 1},
	}

	capable := svc.StreamCapable(context.Background(), addons)
	require.Len(t, capable, 1)
	require.Equal(t, "a", capable[0].ID)
}

func TestCatalogBrowsing(t *testing.T) {
	hosts := map[string]hostHandler{
		"cat.test": func(req *http.Request) (*http.Response, error) {
			if strings.HasSuffix(req.URL.Path, "/manifest.json") {
				return jsonResponse(http.StatusOK, `{
					"id": "org.cat", "name": "Catalogs",
					"resources": ["catalog"],
					"catalogs": [
						{"type": "movie", "id": "top", "name": "Top"},
						{"type": "movie", "id": "find", "name": "Find", "extra": [{"name": "search", "isRequired": true}]}
					]
				}`), nil
			}
			require.Equal(t, "/catalog/movie/top.json", req.URL.Path)
			return jsonResponse(http.StatusOK, `{"metas":[{"id":"tt1","type":"movie","name":"Some Film"}]}`), nil
		},
	}
	svc := newRig(hosts)

	addons := []models.Addon{{ID: "c", Name: "Catalogs", URL: "http://cat.test", Enabled: true}}

	defs := svc.CatalogDefs(context.Background(), addons)
	require.Len(t, defs, 1, "search-required catalogs are not browsable")
	require.Equal(t, "Top", defs[0].Name)

	items, err := svc.FetchCatalogItems(context.Background(), addons, defs[0].Slug)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Some Film", items[0].Name)
}

func TestFetchCatalogItemsRejectsBadSlug(t *testing.T) {
	svc := newRig(nil)
	addons := []models.Addon{{ID: "c", Name: "Catalogs", URL: "http://cat.test", Enabled: true}}

	var validationErr *addon.ValidationError

	_, err := svc.FetchCatalogItems(context.Background(), addons, "not-a-slug")
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.FetchCatalogItems(context.Background(), addons, addon.EncodeCatalogSlug("ghost", "movie", "top"))
	require.ErrorAs(t, err, &validationErr)
}

func TestValidateAddon(t *testing.T) {
	hosts := map[string]hostHandler{
		"good.test": func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, streamManifest), nil
		},
		"bad.test": func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"name":"anonymous"}`), nil
		},
	}
	svc := newRig(hosts)

	manifest, err := svc.ValidateAddon(context.Background(), "http://good.test/manifest.json")
	require.NoError(t, err)
	require.Equal(t, "Test", manifest.Name)

	var protoErr *addon.ProtocolError
	_, err = svc.ValidateAddon(context.Background(), "http://bad.test")
	require.ErrorAs(t, err, &protoErr)

	var configErr *addon.ConfigError
	_, err = svc.ValidateAddon(context.Background(), "not a url")
	require.ErrorAs(t, err, &configErr)
}
