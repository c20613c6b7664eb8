package models

import (
	"encoding/json"
	"strings"
)

// AddonManifest is an addon's self-description fetched from {base}/manifest.json.
// It is transient: fetched on demand and cached by the caller, never persisted.
type AddonManifest struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Version       string             `json:"version"`
	Description   string             `json:"description,omitempty"`
	Logo          string             `json:"logo,omitempty"`
	Resources     []ManifestResource `json:"resources"`
	Types         []string           `json:"types"`
	IDPrefixes    []string           `json:"idPrefixes,omitempty"`
	Catalogs      []ManifestCatalog  `json:"catalogs,omitempty"`
	BehaviorHints map[string]any     `json:"behaviorHints,omitempty"`
}

// ManifestResource names one capability ("stream", "catalog", "meta", ...).
// Addons serve it either as a bare string or as an object with types and
// idPrefixes, so decoding accepts both forms.
type ManifestResource struct {
	Name       string   `json:"name"`
	Types      []string `json:"types,omitempty"`
	IDPrefixes []string `json:"idPrefixes,omitempty"`
}

func (r *ManifestResource) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*r = ManifestResource{Name: name}
		return nil
	}

	type alias ManifestResource
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = ManifestResource(obj)
	return nil
}

func (r ManifestResource) MarshalJSON() ([]byte, error) {
	if len(r.Types) == 0 && len(r.IDPrefixes) == 0 {
		return json.Marshal(r.Name)
	}
	type alias ManifestResource
	return json.Marshal(alias(r))
}

// ManifestCatalog declares one browsable listing an addon exposes.
type ManifestCatalog struct {
	Type  string         `json:"type"`
	ID    string         `json:"id"`
	Name  string         `json:"name,omitempty"`
	Extra []CatalogExtra `json:"extra,omitempty"`
	// Legacy form of the extra declaration still served by older addons.
	ExtraRequired []string `json:"extraRequired,omitempty"`
}

// CatalogExtra declares one extra query parameter a catalog supports.
type CatalogExtra struct {
	Name       string   `json:"name"`
	IsRequired bool     `json:"isRequired,omitempty"`
	Options    []string `json:"options,omitempty"`
}
