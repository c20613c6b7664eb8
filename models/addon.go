package models

// Addon is one configured stream addon registration. Records are owned by the
// addon store; the aggregation core only ever reads snapshots of them.
type Addon struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
	Order   int    `json:"order"`
}

// AddonUpdate carries a partial update to an addon record. Nil fields are left
// untouched.
type AddonUpdate struct {
	Name    *string `json:"name,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
	Order   *int    `json:"order,omitempty"`
}
