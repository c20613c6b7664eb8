package addon

import (
	"strings"

	"streamgate/models"
)

const (
	resourceStream  = "stream"
	resourceCatalog = "catalog"
)

// HasStreams reports whether the manifest declares the stream capability.
func HasStreams(m *models.AddonManifest) bool {
	return hasResource(m, resourceStream)
}

// HasCatalogs reports whether the manifest exposes any browsable catalogs.
func HasCatalogs(m *models.AddonManifest) bool {
	return m != nil && len(m.Catalogs) > 0
}

func hasResource(m *models.AddonManifest, name string) bool {
	if m == nil {
		return false
	}
	for _, res := range m.Resources {
		if strings.EqualFold(strings.TrimSpace(res.Name), name) {
			return true
		}
	}
	return false
}

// BrowsableCatalogs returns the manifest's catalogs that can be listed without
// a query. Catalogs whose declared extra parameters mark "search" as required
// cannot be browsed plainly and are excluded.
func BrowsableCatalogs(m *models.AddonManifest) []models.ManifestCatalog {
	if m == nil {
		return nil
	}
	browsable := make([]models.ManifestCatalog, 0, len(m.Catalogs))
	for _, cat := range m.Catalogs {
		if requiresSearch(cat) {
			continue
		}
		browsable = append(browsable, cat)
	}
	return browsable
}

func requiresSearch(cat models.ManifestCatalog) bool {
	for _, extra := range cat.Extra {
		if extra.IsRequired && strings.EqualFold(extra.Name, "search") {
			return true
		}
	}
	for _, name := range cat.ExtraRequired {
		if strings.EqualFold(name, "search") {
			return true
		}
	}
	return false
}

// CatalogDefs derives addressable catalog definitions from one addon's
// manifest, slugged for catalog-browsing URLs.
func CatalogDefs(a models.Addon, m *models.AddonManifest) []models.CatalogDef {
	catalogs := BrowsableCatalogs(m)
	defs := make([]models.CatalogDef, 0, len(catalogs))
	for _, cat := range catalogs {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			name = cat.ID
		}
		defs = append(defs, models.CatalogDef{
			Type:      cat.Type,
			ID:        cat.ID,
			Name:      name,
			Slug:      EncodeCatalogSlug(a.ID, cat.Type, cat.ID),
			AddonID:   a.ID,
			AddonName: a.Name,
			AddonURL:  a.URL,
		})
	}
	return defs
}
