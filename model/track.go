package model

import (
	"encoding/json"
	"time"
)

// TrackInfo is the decoded metadata of an encoded track handle. Field names
// follow the node wire format.
type TrackInfo struct {
	Identifier string          `json:"identifier"`
	IsSeekable bool            `json:"isSeekable"`
	Author     string          `json:"author"`
	Length     int64           `json:"length"` // milliseconds
	IsStream   bool            `json:"isStream"`
	Position   int64           `json:"position"`
	Title      string          `json:"title"`
	URI        *string         `json:"uri,omitempty"`
	ArtworkURL *string         `json:"artworkUrl,omitempty"`
	ISRC       *string         `json:"isrc,omitempty"`
	SourceName string          `json:"sourceName"`
	ProbeInfo  *string         `json:"probeInfo,omitempty"` // local/http sources only
	PluginInfo json.RawMessage `json:"pluginInfo,omitempty"`
}

// Track is an opaque encoded handle plus whatever metadata is known about it.
// Tracks are value-like; copies across queue/history/session boundaries are
// independent apart from the originating query reference.
type Track struct {
	Encoded      string     `json:"encoded"`
	Info         *TrackInfo `json:"info,omitempty"`
	Requester    int64      `json:"requester,omitempty"`
	Query        *Query     `json:"-"`
	LastPosition int64      `json:"lastPosition,omitempty"` // milliseconds
}

// EncodedHandle returns the opaque handle used for O(1) membership checks.
func (t *Track) EncodedHandle() string {
	return t.Encoded
}

// Title returns the display title, falling back to the identifier.
func (t *Track) Title() string {
	if t.Info != nil && t.Info.Title != "" {
		return t.Info.Title
	}
	return t.Encoded
}

// Duration returns the track length as a duration.
func (t *Track) Duration() time.Duration {
	if t.Info == nil {
		return 0
	}
	return time.Duration(t.Info.Length) * time.Millisecond
}

// IsSeekable reports whether the node can seek within this track. Live
// streams are never seekable.
func (t *Track) IsSeekable() bool {
	if t.Info == nil {
		return false
	}
	return t.Info.IsSeekable && !t.Info.IsStream
}

// RequiresCapability returns the source capability a node must advertise to
// play this track.
func (t *Track) RequiresCapability() string {
	if t.Query != nil && t.Query.RequiresCapability != "" {
		return t.Query.RequiresCapability
	}
	if t.Info != nil {
		return t.Info.SourceName
	}
	return ""
}
