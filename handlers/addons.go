package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"streamgate/models"
	"streamgate/services/addonstore"
	"streamgate/services/aggregate"
)

type addonStore interface {
	List() ([]models.Addon, error)
	Get(id string) (*models.Addon, error)
	Create(name, url string) (models.Addon, error)
	Update(id string, upd models.AddonUpdate) (*models.Addon, error)
	Delete(id string) error
}

var _ addonStore = (*addonstore.Service)(nil)

type manifestValidator interface {
	ValidateAddon(ctx context.Context, rawURL string) (*models.AddonManifest, error)
}

var _ manifestValidator = (*aggregate.Service)(nil)

// AddonsHandler manages the addon registry.
type AddonsHandler struct {
	Store     addonStore
	Validator manifestValidator
}

func NewAddonsHandler(store addonStore, validator manifestValidator) *AddonsHandler {
	return &AddonsHandler{Store: store, Validator: validator}
}

func (h *AddonsHandler) List(w http.ResponseWriter, r *http.Request) {
	addons, err := h.Store.List()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addons)
}

type createAddonRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// Create validates the manifest behind the submitted URL before anything is
// persisted, so the registry only ever holds reachable addons.
func (h *AddonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAddonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	manifest, err := h.Validator.ValidateAddon(r.Context(), req.URL)
	if err != nil {
		log.Printf("[addons] validation failed for %q: %v", req.URL, err)
		writeServiceError(w, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = manifest.Name
	}
	created, err := h.Store.Create(name, req.URL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	log.Printf("[addons] registered %s (%s)", created.Name, created.URL)
	writeJSON(w, http.StatusCreated, created)
}

func (h *AddonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Store.Get(mux.Vars(r)["addonID"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AddonsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var upd models.AddonUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	a, err := h.Store.Update(mux.Vars(r)["addonID"], upd)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *AddonsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(mux.Vars(r)["addonID"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AddonsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
