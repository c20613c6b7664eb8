package addon

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"streamgate/models"
)

// Markers third-party addons put in their labels to flag a debrid-cached
// result. Best-effort heuristics over untrusted free text, never a security
// boundary.
const (
	instantGlyph  = "⚡"
	verifiedGlyph = "✅"
)

var (
	hexHashExact = regexp.MustCompile(`^[0-9a-fA-F]{40}$`)
	hexHashScan  = regexp.MustCompile(`[0-9a-fA-F]{40}`)
	reSize       = regexp.MustCompile(`💾\s*([\d.,]+)\s*([KMGTP]?B)`)
	rePeers      = regexp.MustCompile(`👤\s*(\d+)`)
)

// ParseStreams normalizes every raw stream of one addon response. It never
// fails: a malformed record degrades to a Source with missing optional fields
// rather than aborting the batch.
func ParseStreams(raws []models.RawStream, a models.Addon) []models.Source {
	sources := make([]models.Source, 0, len(raws))
	for _, raw := range raws {
		sources = append(sources, ParseStream(raw, a))
	}
	return sources
}

// ParseStream turns one raw stream record into a normalized Source owned by
// the given addon.
func ParseStream(raw models.RawStream, a models.Addon) models.Source {
	src := models.Source{
		Title:     strings.TrimSpace(raw.Name),
		Folder:    joinNonEmpty("\n", raw.Title, raw.Description),
		IsCached:  IsCachedLabel(raw.Name, raw.Description),
		AddonID:   a.ID,
		AddonName: a.Name,
		AddonURL:  a.URL,
	}

	if hash := ExtractInfoHash(raw); hash != "" {
		src.Hash = hash
		src.Magnet = BuildMagnet(hash, src.Title)
	} else if u := strings.TrimSpace(raw.URL); u != "" {
		// Fallback reference only: never set alongside a magnet.
		src.URL = u
	}

	if raw.BehaviorHints.VideoSize > 0 {
		src.Size = raw.BehaviorHints.VideoSize
	} else {
		src.Size = parseSizeText(src.Folder)
	}
	src.Peers = parsePeersText(src.Folder)

	return src
}

// ExtractInfoHash recovers a torrent info-hash from a raw stream, in priority
// order: the infoHash field verbatim, then behaviorHints.bingeGroup. The
// bingeGroup tag is provider-specific free text; a "provider|hash" form is
// preferred, then the whole field, then any embedded 40-hex run. videoHash is
// a content identifier, not a torrent hash, and is never consulted.
func ExtractInfoHash(raw models.RawStream) string {
	if hash := strings.TrimSpace(raw.InfoHash); hash != "" {
		return strings.ToLower(hash)
	}

	binge := strings.TrimSpace(raw.BehaviorHints.BingeGroup)
	if binge == "" {
		return ""
	}
	if parts := strings.Split(binge, "|"); len(parts) >= 2 && hexHashExact.MatchString(parts[1]) {
		return strings.ToLower(parts[1])
	}
	if hexHashExact.MatchString(binge) {
		return strings.ToLower(binge)
	}
	if match := hexHashScan.FindString(binge); match != "" {
		return strings.ToLower(match)
	}
	return ""
}

// BuildMagnet builds a magnet URI for the given info-hash and display title.
func BuildMagnet(infoHash, title string) string {
	if infoHash == "" {
		return ""
	}
	builder := strings.Builder{}
	builder.WriteString("magnet:?xt=urn:btih:")
	builder.WriteString(strings.ToLower(infoHash))
	if title != "" {
		builder.WriteString("&dn=")
		builder.WriteString(url.QueryEscape(title))
	}
	return builder.String()
}

// IsCachedLabel classifies a stream as instantly available from a debrid
// provider based on the addon's own labeling: an "instant" substring, a literal
// '+' in the name, or one of the community marker glyphs anywhere in the
// name/description text.
func IsCachedLabel(name, description string) bool {
	if strings.Contains(strings.ToLower(name), "instant") {
		return true
	}
	if strings.Contains(name, "+") {
		return true
	}
	combined := name + description
	return strings.Contains(combined, instantGlyph) || strings.Contains(combined, verifiedGlyph)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, sep)
}

// parseSizeText pulls a 💾-tagged size out of free-text metadata. Some addons
// only report size in this form.
func parseSizeText(text string) int64 {
	match := reSize.FindStringSubmatch(text)
	if len(match) != 3 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	multipliers := map[string]float64{
		"B":  1,
		"KB": 1 << 10,
		"MB": 1 << 20,
		"GB": 1 << 30,
		"TB": 1 << 40,
		"PB": 1 << 50,
	}
	mult, ok := multipliers[strings.ToUpper(match[2])]
	if !ok {
		return 0
	}
	return int64(value * mult)
}

// parsePeersText pulls a 👤-tagged peer count out of free-text metadata.
func parsePeersText(text string) int {
	match := rePeers.FindStringSubmatch(text)
	if len(match) != 2 {
		return 0
	}
	peers, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return peers
}
