package aggregate

import (
	"sort"

	"streamgate/models"
)

// accumulator folds settle events into the current merged view. It is only
// touched from the lookup's fold loop, so it carries no locking.
type accumulator struct {
	// Contributions keyed by dispatch index; the merge walks them in dispatch
	// order so the ranking stays stable regardless of arrival order.
	order         []string
	contributions map[string][]models.Source
	failed        []string
}

func newAccumulator() *accumulator {
	return &accumulator{
		contributions: make(map[string][]models.Source),
	}
}

// expect registers an addon in dispatch order before its fetch is issued.
func (a *accumulator) expect(ad models.Addon) {
	a.order = append(a.order, ad.ID)
}

// fail records an addon that could not be queried at all.
func (a *accumulator) fail(name string) {
	a.failed = append(a.failed, name)
}

// apply folds one settle event in.
func (a *accumulator) apply(ev settleEvent) {
	if ev.err != nil {
		a.failed = append(a.failed, ev.addon.Name)
		return
	}
	a.contributions[ev.addon.ID] = ev.sources
}

// snapshot produces the merged view: all cached-classified sources first, then
// the rest; within each partition, addon-dispatch order, preserving each
// addon's own response order. This is the only ordering callers may rely on.
func (a *accumulator) snapshot(loading bool) Result {
	var cached, uncached []models.Source
	for _, id := range a.order {
		for _, src := range a.contributions[id] {
			if src.IsCached {
				cached = append(cached, src)
			} else {
				uncached = append(uncached, src)
			}
		}
	}

	sources := make([]models.Source, 0, len(cached)+len(uncached))
	sources = append(sources, cached...)
	sources = append(sources, uncached...)

	failed := make([]string, len(a.failed))
	copy(failed, a.failed)
	sort.Strings(failed)

	return Result{
		Sources:          sources,
		Loading:          loading,
		FailedAddonNames: failed,
	}
}
