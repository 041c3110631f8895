package model

// EventType tags a domain event variant.
type EventType string

const (
	EventTrackStart         EventType = "track_start"
	EventTrackEnd           EventType = "track_end"
	EventTrackException     EventType = "track_exception"
	EventTrackStuck         EventType = "track_stuck"
	EventQueueEnd           EventType = "queue_end"
	EventPlayerPaused       EventType = "player_paused"
	EventPlayerResumed      EventType = "player_resumed"
	EventPlayerAutoPaused   EventType = "player_auto_paused"
	EventPlayerAutoResumed  EventType = "player_auto_resumed"
	EventPlayerMoved        EventType = "player_moved"
	EventPlayerDisconnected EventType = "player_disconnected"
	EventPlayerRestored     EventType = "player_restored"
	EventFiltersApplied     EventType = "filters_applied"
	EventVolumeChanged      EventType = "volume_changed"
	EventRepeatChanged      EventType = "repeat_changed"
	EventNodeConnected      EventType = "node_connected"
	EventNodeDisconnected   EventType = "node_disconnected"
	EventNodeStats          EventType = "node_stats"
	EventWebSocketClosed    EventType = "websocket_closed"
)

// Event is the closed set of domain notifications. Variants are dispatched to
// registered handlers; there is no string-based method lookup.
type Event interface {
	EventType() EventType
}

// GuildEvent is implemented by events scoped to one guild's player.
type GuildEvent interface {
	Event
	EventGuildID() int64
}

// ErrorKind classifies exception events carried through the event bus.
type ErrorKind string

const (
	ErrorKindCommon     ErrorKind = "common"
	ErrorKindSuspicious ErrorKind = "suspicious"
	ErrorKindFault      ErrorKind = "fault"
)

type TrackStartEvent struct {
	GuildID int64
	Track   *Track
	Node    string
}

func (TrackStartEvent) EventType() EventType  { return EventTrackStart }
func (e TrackStartEvent) EventGuildID() int64 { return e.GuildID }

type TrackEndEvent struct {
	GuildID int64
	Track   *Track
	Reason  string
	Node    string
}

func (TrackEndEvent) EventType() EventType  { return EventTrackEnd }
func (e TrackEndEvent) EventGuildID() int64 { return e.GuildID }

// TrackExceptionEvent carries a node-reported playback failure. Kind conveys
// the node's severity classification rather than reusing Go error handling as
// a notification channel.
type TrackExceptionEvent struct {
	GuildID int64
	Track   *Track
	Message string
	Kind    ErrorKind
	Cause   string
	Node    string
}

func (TrackExceptionEvent) EventType() EventType  { return EventTrackException }
func (e TrackExceptionEvent) EventGuildID() int64 { return e.GuildID }

type TrackStuckEvent struct {
	GuildID     int64
	Track       *Track
	ThresholdMs int64
	Node        string
}

func (TrackStuckEvent) EventType() EventType  { return EventTrackStuck }
func (e TrackStuckEvent) EventGuildID() int64 { return e.GuildID }

type QueueEndEvent struct {
	GuildID int64
}

func (QueueEndEvent) EventType() EventType  { return EventQueueEnd }
func (e QueueEndEvent) EventGuildID() int64 { return e.GuildID }

type PlayerPausedEvent struct {
	GuildID   int64
	Requester int64
}

func (PlayerPausedEvent) EventType() EventType  { return EventPlayerPaused }
func (e PlayerPausedEvent) EventGuildID() int64 { return e.GuildID }

type PlayerResumedEvent struct {
	GuildID   int64
	Requester int64
}

func (PlayerResumedEvent) EventType() EventType  { return EventPlayerResumed }
func (e PlayerResumedEvent) EventGuildID() int64 { return e.GuildID }

type PlayerAutoPausedEvent struct {
	GuildID int64
}

func (PlayerAutoPausedEvent) EventType() EventType  { return EventPlayerAutoPaused }
func (e PlayerAutoPausedEvent) EventGuildID() int64 { return e.GuildID }

type PlayerAutoResumedEvent struct {
	GuildID int64
}

func (PlayerAutoResumedEvent) EventType() EventType  { return EventPlayerAutoResumed }
func (e PlayerAutoResumedEvent) EventGuildID() int64 { return e.GuildID }

type PlayerMovedEvent struct {
	GuildID  int64
	FromNode string
	ToNode   string
}

func (PlayerMovedEvent) EventType() EventType  { return EventPlayerMoved }
func (e PlayerMovedEvent) EventGuildID() int64 { return e.GuildID }

type PlayerDisconnectedEvent struct {
	GuildID   int64
	Requester int64
}

func (PlayerDisconnectedEvent) EventType() EventType  { return EventPlayerDisconnected }
func (e PlayerDisconnectedEvent) EventGuildID() int64 { return e.GuildID }

type PlayerRestoredEvent struct {
	GuildID   int64
	Requester int64
}

func (PlayerRestoredEvent) EventType() EventType  { return EventPlayerRestored }
func (e PlayerRestoredEvent) EventGuildID() int64 { return e.GuildID }

type FiltersAppliedEvent struct {
	GuildID int64
	Filters *Filters
}

func (FiltersAppliedEvent) EventType() EventType  { return EventFiltersApplied }
func (e FiltersAppliedEvent) EventGuildID() int64 { return e.GuildID }

type VolumeChangedEvent struct {
	GuildID int64
	Volume  int
}

func (VolumeChangedEvent) EventType() EventType  { return EventVolumeChanged }
func (e VolumeChangedEvent) EventGuildID() int64 { return e.GuildID }

type RepeatChangedEvent struct {
	GuildID       int64
	RepeatCurrent bool
	RepeatQueue   bool
}

func (RepeatChangedEvent) EventType() EventType  { return EventRepeatChanged }
func (e RepeatChangedEvent) EventGuildID() int64 { return e.GuildID }

type NodeConnectedEvent struct {
	Node      string
	SessionID string
	Resumed   bool
}

func (NodeConnectedEvent) EventType() EventType { return EventNodeConnected }

type NodeDisconnectedEvent struct {
	Node string
	Code int
}

func (NodeDisconnectedEvent) EventType() EventType { return EventNodeDisconnected }

type NodeStatsEvent struct {
	Node  string
	Stats NodeStats
}

func (NodeStatsEvent) EventType() EventType { return EventNodeStats }

type WebSocketClosedEvent struct {
	GuildID  int64
	Code     int
	Reason   string
	ByRemote bool
}

func (WebSocketClosedEvent) EventType() EventType  { return EventWebSocketClosed }
func (e WebSocketClosedEvent) EventGuildID() int64 { return e.GuildID }
