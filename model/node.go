package model

import "encoding/json"

// MemoryStats is the node JVM memory section of a stats payload.
type MemoryStats struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPUStats is the node CPU section of a stats payload.
type CPUStats struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats counts audio frames over the last minute. Nil while a node has
// no players.
type FrameStats struct {
	Sent    int64 `json:"sent"`
	Nulled  int64 `json:"nulled"`
	Deficit int64 `json:"deficit"`
}

// NodeStats is the periodic health snapshot a node reports.
type NodeStats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"` // milliseconds
	Memory         MemoryStats `json:"memory"`
	CPU            CPUStats    `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

// VoiceState is the voice-handshake triple forwarded to a node. It is
// all-or-nothing: a player is unusable until every field is present.
type VoiceState struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether the whole triple has arrived.
func (v VoiceState) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}

// NullableString distinguishes an absent PATCH field from an explicit JSON
// null. A nil *NullableString is omitted; a NullableString with a nil Value
// encodes as null, which is how a node-side track is stopped.
type NullableString struct {
	Value *string
}

// MarshalJSON implements json.Marshaler.
func (s NullableString) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*s.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *NullableString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		s.Value = nil
		return nil
	}
	return json.Unmarshal(data, &s.Value)
}

// StringValue wraps a concrete string for a PATCH body.
func StringValue(v string) *NullableString {
	return &NullableString{Value: &v}
}

// NullValue is an explicit JSON null for a PATCH body.
func NullValue() *NullableString {
	return &NullableString{}
}

// PlayerUpdate is the PATCH body for a node-side player. Pointer fields are
// omitted when nil so partial updates never clobber unrelated state.
type PlayerUpdate struct {
	EncodedTrack *NullableString `json:"encodedTrack,omitempty"`
	Identifier   *string     `json:"identifier,omitempty"`
	Position     *int64      `json:"position,omitempty"`
	EndTime      *int64      `json:"endTime,omitempty"`
	Volume       *int        `json:"volume,omitempty"`
	Paused       *bool       `json:"paused,omitempty"`
	Filters      *Filters    `json:"filters,omitempty"`
	Voice        *VoiceState `json:"voice,omitempty"`
}

// RestPlayer is the node's view of a session player as returned by GET.
type RestPlayer struct {
	GuildID string     `json:"guildId"`
	Track   *Track     `json:"track,omitempty"`
	Volume  int        `json:"volume"`
	Paused  bool       `json:"paused"`
	State   PlayerTick `json:"state"`
	Voice   VoiceState `json:"voice"`
	Filters *Filters   `json:"filters,omitempty"`
}

// PlayerTick is the live position block inside playerUpdate ops and REST
// player fetches.
type PlayerTick struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int64 `json:"ping"`
}

// RoutePlannerStatus is the route-planner diagnostic payload.
type RoutePlannerStatus struct {
	Class   *string `json:"class"`
	Details any     `json:"details"`
}
