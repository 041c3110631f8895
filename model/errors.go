package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across packages.
var (
	// ErrNoNodeAvailable is returned when the node pool has no available node
	// at all for a request.
	ErrNoNodeAvailable = errors.New("no audio node available")

	// ErrNodeUnhealthy is returned when an operation targets a node that is
	// currently marked unavailable.
	ErrNodeUnhealthy = errors.New("node is unhealthy")

	// ErrWebsocketNotConnected is returned when a websocket-level operation is
	// attempted against a node whose socket is down.
	ErrWebsocketNotConnected = errors.New("node websocket not connected")

	// ErrTrackNotFound is returned when the queue or history is empty but a
	// track was expected.
	ErrTrackNotFound = errors.New("track not found")

	// ErrNotSeekable is returned when seeking into live or otherwise
	// non-seekable content.
	ErrNotSeekable = errors.New("track is not seekable")

	// ErrNotConnected is returned for player operations that require an
	// established voice connection.
	ErrNotConnected = errors.New("player is not connected")
)

// NoCapableNodeError reports that nodes exist but none advertise the
// capability a request needs. Distinct from ErrNoNodeAvailable so callers can
// tell a full outage from a missing feature.
type NoCapableNodeError struct {
	Feature string
}

func (e *NoCapableNodeError) Error() string {
	return fmt.Sprintf("no available node supports %q", e.Feature)
}

// FilterUnsupportedError reports a filter operation against a node that does
// not advertise that filter.
type FilterUnsupportedError struct {
	Filter string
	Node   string
}

func (e *FilterUnsupportedError) Error() string {
	return fmt.Sprintf("node %s does not support filter %q", e.Node, e.Filter)
}

// RequiresCapabilityError reports a track whose source no reachable node can
// serve. The failing track rides along so observers can report it.
type RequiresCapabilityError struct {
	Feature string
	Track   *Track
}

func (e *RequiresCapabilityError) Error() string {
	return fmt.Sprintf("playback requires capability %q which no node provides", e.Feature)
}

func (e *RequiresCapabilityError) Unwrap() error {
	return &NoCapableNodeError{Feature: e.Feature}
}
