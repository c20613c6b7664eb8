package models

import (
	"fmt"
	"strings"
)

// MediaKind distinguishes the two addressable content shapes.
type MediaKind string

const (
	MediaKindMovie MediaKind = "movie"
	MediaKindShow  MediaKind = "show"
)

// ContentRequest identifies one piece of content to look up across addons.
// Season and Episode are meaningful only when Kind is MediaKindShow.
type ContentRequest struct {
	ExternalID string    `json:"externalId"`
	Kind       MediaKind `json:"kind"`
	Season     int       `json:"season,omitempty"`
	Episode    int       `json:"episode,omitempty"`
}

// Key returns a stable cache/lookup key for the request parameters.
func (r ContentRequest) Key() string {
	return fmt.Sprintf("%s:%s:%d:%d", r.Kind, strings.TrimSpace(r.ExternalID), r.Season, r.Episode)
}

// RawStream is one entry from an addon's stream response, exactly as served.
// Every field is optional in the wild; third-party addons disagree about which
// ones they fill in.
type RawStream struct {
	Name          string              `json:"name,omitempty"`
	Title         string              `json:"title,omitempty"`
	Description   string              `json:"description,omitempty"`
	URL           string              `json:"url,omitempty"`
	InfoHash      string              `json:"infoHash,omitempty"`
	FileIdx       *int                `json:"fileIdx,omitempty"`
	BehaviorHints StreamBehaviorHints `json:"behaviorHints,omitempty"`
}

// StreamBehaviorHints is the hint bag attached to a raw stream. BingeGroup is a
// provider-specific tag that sometimes encodes a torrent hash; VideoHash is a
// content identifier and must never be treated as one.
type StreamBehaviorHints struct {
	BingeGroup string `json:"bingeGroup,omitempty"`
	VideoHash  string `json:"videoHash,omitempty"`
	VideoSize  int64  `json:"videoSize,omitempty"`
	Filename   string `json:"filename,omitempty"`
}

// StreamResponse is the success shape of a stream fetch.
type StreamResponse struct {
	Streams []RawStream `json:"streams"`
}

// Source is one normalized playable/downloadable candidate. Exactly one of
// Magnet or URL is the usable reference: URL is a fallback populated only when
// no torrent hash could be recovered.
type Source struct {
	Title    string `json:"title"`
	Folder   string `json:"folder,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Peers    int    `json:"peers,omitempty"`
	Hash     string `json:"hash,omitempty"`
	Magnet   string `json:"magnet,omitempty"`
	URL      string `json:"url,omitempty"`
	IsCached bool   `json:"isCached"`

	AddonID   string `json:"addonId"`
	AddonName string `json:"addonName"`
	AddonURL  string `json:"addonUrl"`
}
