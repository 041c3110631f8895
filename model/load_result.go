package model

// LoadType classifies what a load/search request produced.
type LoadType string

const (
	LoadTypeTrack    LoadType = "track"
	LoadTypePlaylist LoadType = "playlist"
	LoadTypeSearch   LoadType = "search"
	LoadTypeEmpty    LoadType = "empty"
	LoadTypeError    LoadType = "error"
)

// PlaylistInfo describes a loaded playlist container.
type PlaylistInfo struct {
	Name          string `json:"name"`
	SelectedTrack int    `json:"selectedTrack"`
}

// LoadException is a node-reported load failure.
type LoadException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause,omitempty"`
}

// LoadResult is the outcome of resolving an identifier or search on a node.
type LoadResult struct {
	LoadType     LoadType       `json:"loadType"`
	Tracks       []*Track       `json:"tracks,omitempty"`
	PlaylistInfo *PlaylistInfo  `json:"playlistInfo,omitempty"`
	Exception    *LoadException `json:"exception,omitempty"`
}
