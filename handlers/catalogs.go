package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"streamgate/models"
	"streamgate/services/aggregate"
)

type catalogBrowser interface {
	CatalogDefs(ctx context.Context, addons []models.Addon) []models.CatalogDef
	FetchCatalogItems(ctx context.Context, addons []models.Addon, slug string) ([]models.MediaItem, error)
}

var _ catalogBrowser = (*aggregate.Service)(nil)

// CatalogsHandler exposes the browsable catalogs of the enabled addons.
type CatalogsHandler struct {
	Service catalogBrowser
	Store   addonStore
}

func NewCatalogsHandler(svc catalogBrowser, store addonStore) *CatalogsHandler {
	return &CatalogsHandler{Service: svc, Store: store}
}

func (h *CatalogsHandler) List(w http.ResponseWriter, r *http.Request) {
	addons, err := h.Store.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defs := h.Service.CatalogDefs(r.Context(), addons)
	if defs == nil {
		defs = []models.CatalogDef{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *CatalogsHandler) Items(w http.ResponseWriter, r *http.Request) {
	addons, err := h.Store.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	items, err := h.Service.FetchCatalogItems(r.Context(), addons, mux.Vars(r)["slug"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if items == nil {
		items = []models.MediaItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *CatalogsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
