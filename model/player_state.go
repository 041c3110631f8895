package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// TrackSnapshot is the persisted form of a track slot: the encoded handle,
// the query that produced it, a metadata snapshot for offline display, and
// free-form extras.
type TrackSnapshot struct {
	Encoded   string          `json:"encoded"`
	Query     *Query          `json:"query,omitempty"`
	Info      *TrackInfo      `json:"info,omitempty"`
	Requester int64           `json:"requester,omitempty"`
	Position  int64           `json:"position,omitempty"`
	Extras    json.RawMessage `json:"extras,omitempty"`
}

// ToTrack rehydrates a snapshot into a live track.
func (s *TrackSnapshot) ToTrack() *Track {
	if s == nil {
		return nil
	}
	return &Track{
		Encoded:      s.Encoded,
		Info:         s.Info,
		Requester:    s.Requester,
		Query:        s.Query,
		LastPosition: s.Position,
	}
}

// SnapshotTrack captures a live track for persistence.
func SnapshotTrack(t *Track) *TrackSnapshot {
	if t == nil {
		return nil
	}
	return &TrackSnapshot{
		Encoded:   t.Encoded,
		Query:     t.Query,
		Info:      t.Info,
		Requester: t.Requester,
		Position:  t.LastPosition,
	}
}

// TrackSnapshotList maps a track list onto a JSON column.
type TrackSnapshotList []TrackSnapshot

// Scan implements sql.Scanner.
func (l *TrackSnapshotList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		*l = nil
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		*l = nil
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Value implements driver.Valuer.
func (l TrackSnapshotList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// TrackSnapshotJSON maps a single nullable track onto a JSON column.
type TrackSnapshotJSON struct {
	Snapshot *TrackSnapshot
}

// Scan implements sql.Scanner.
func (t *TrackSnapshotJSON) Scan(value interface{}) error {
	t.Snapshot = nil
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		return nil
	}
	return json.Unmarshal(bytes, &t.Snapshot)
}

// Value implements driver.Valuer.
func (t TrackSnapshotJSON) Value() (driver.Value, error) {
	if t.Snapshot == nil {
		return nil, nil
	}
	return json.Marshal(t.Snapshot)
}

// FiltersJSON maps a filter chain onto a JSON column.
type FiltersJSON struct {
	Filters *Filters
}

// Scan implements sql.Scanner.
func (f *FiltersJSON) Scan(value interface{}) error {
	f.Filters = nil
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		return nil
	}
	return json.Unmarshal(bytes, &f.Filters)
}

// Value implements driver.Valuer.
func (f FiltersJSON) Value() (driver.Value, error) {
	if f.Filters == nil {
		return nil, nil
	}
	return json.Marshal(f.Filters)
}

// StateExtras carries lookahead and auto-pause bookkeeping across restarts.
type StateExtras struct {
	LastTrack      *TrackSnapshot `json:"lastTrack,omitempty"`
	NextTrack      *TrackSnapshot `json:"nextTrack,omitempty"`
	WasAlonePaused bool           `json:"wasAlonePaused,omitempty"`
}

// StateExtrasJSON maps StateExtras onto a JSON column.
type StateExtrasJSON struct {
	Extras StateExtras
}

// Scan implements sql.Scanner.
func (e *StateExtrasJSON) Scan(value interface{}) error {
	e.Extras = StateExtras{}
	if value == nil {
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		return nil
	}
	return json.Unmarshal(bytes, &e.Extras)
}

// Value implements driver.Valuer.
func (e StateExtrasJSON) Value() (driver.Value, error) {
	return json.Marshal(e.Extras)
}

// PlayerStateRecord is the durable snapshot of a player session, keyed by
// (guild, bot). Written before shutdown and on disconnect, read once at
// startup, deleted after a successful restore.
type PlayerStateRecord struct {
	GuildID   int64 `json:"guildId" gorm:"primaryKey;autoIncrement:false"`
	BotID     int64 `json:"botId" gorm:"primaryKey;autoIncrement:false"`
	ChannelID int64 `json:"channelId" gorm:"not null"`

	Volume   int   `json:"volume" gorm:"default:100"`
	Position int64 `json:"position"`

	Paused        bool  `json:"paused"`
	RepeatCurrent bool  `json:"repeatCurrent"`
	RepeatQueue   bool  `json:"repeatQueue"`
	Shuffle       bool  `json:"shuffle"`
	AutoPlay      bool  `json:"autoPlay"`
	AutoPlayList  int64 `json:"autoPlayList"`
	SelfDeaf      bool  `json:"selfDeaf"`

	Current TrackSnapshotJSON `json:"current" gorm:"type:json"`
	Queue   TrackSnapshotList `json:"queue" gorm:"type:json"`
	History TrackSnapshotList `json:"history" gorm:"type:json"`
	Filters FiltersJSON       `json:"filters" gorm:"type:json"`
	Extras  StateExtrasJSON   `json:"extras" gorm:"type:json"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName pins the table name.
func (PlayerStateRecord) TableName() string {
	return "player_states"
}
