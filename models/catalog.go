package models

// MediaItem is one entry of an addon catalog response, used to decorate
// browsing UIs. Only the fields this application surfaces are decoded.
type MediaItem struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Poster      string `json:"poster,omitempty"`
	Background  string `json:"background,omitempty"`
	Description string `json:"description,omitempty"`
	ReleaseInfo string `json:"releaseInfo,omitempty"`
	IMDBRating  string `json:"imdbRating,omitempty"`
}

// CatalogResponse is the success shape of a catalog fetch.
type CatalogResponse struct {
	Metas []MediaItem `json:"metas"`
}

// CatalogDef is one addressable browsable catalog, derived from a manifest's
// catalogs list together with the owning addon's identity. Never persisted.
type CatalogDef struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	AddonID   string `json:"addonId"`
	AddonName string `json:"addonName"`
	AddonURL  string `json:"addonUrl"`
}
