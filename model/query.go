package model

import "context"

// Query is the parsed representation of user input: what kind of thing it
// names and which node capability is needed to resolve it. Parsing the query
// grammar itself happens upstream; this is the shape the selection and
// playback paths consume.
type Query struct {
	Raw    string `json:"raw"`
	Source string `json:"source,omitempty"`

	IsSearch         bool `json:"isSearch,omitempty"`
	IsSingle         bool `json:"isSingle,omitempty"`
	IsPlaylist       bool `json:"isPlaylist,omitempty"`
	IsAlbum          bool `json:"isAlbum,omitempty"`
	IsLocal          bool `json:"isLocal,omitempty"`
	IsHTTP           bool `json:"isHTTP,omitempty"`
	IsM3U            bool `json:"isM3U,omitempty"`
	IsPLS            bool `json:"isPLS,omitempty"`
	IsCustomPlaylist bool `json:"isCustomPlaylist,omitempty"`

	// RequiresCapability is used verbatim as the node feature filter key.
	RequiresCapability string `json:"requiresCapability,omitempty"`

	// Expand produces the nested queries of a container type (album,
	// playlist, m3u). Nil for leaf queries.
	Expand func(ctx context.Context) ([]*Query, error) `json:"-"`
}

// IsContainer reports whether the query expands into nested queries.
func (q *Query) IsContainer() bool {
	return q.Expand != nil && (q.IsPlaylist || q.IsAlbum || q.IsM3U || q.IsPLS || q.IsCustomPlaylist)
}
