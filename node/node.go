// Package node owns the pool of remote audio backends: per-node REST and
// websocket transports, health tracking, and best-node selection.
package node

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"LinkFM/events"
	"LinkFM/model"
)

// Options configures one node connection.
type Options struct {
	ID         int
	Name       string
	Host       string
	Port       int
	Password   string
	SSL        bool
	Region     string
	Latitude   float64
	Longitude  float64
	SearchOnly bool
	Managed    bool
	Sources    []string // static capability hints; merged with /v4/info
	BotID      int64
}

// Node is one remote audio backend. Stats and availability mutate
// continuously under the node's own lock; identity fields are immutable.
type Node struct {
	opts Options
	rest *restClient
	bus  *events.Bus

	mu        sync.RWMutex
	available bool
	sessionID string
	resumed   bool
	resuming  bool // leave the remote session alive across our restarts
	stats     model.NodeStats
	statsAt   time.Time
	sources   map[string]bool
	filters   map[string]bool

	ws     *socket
	closed chan struct{}
	once   sync.Once

	// onPlayerUpdate receives high-frequency position ticks outside the bus.
	onPlayerUpdate func(guildID int64, tick model.PlayerTick)
}

// newNode wires a node handle without connecting it.
func newNode(opts Options, httpClient *http.Client, bus *events.Bus,
	onPlayerUpdate func(int64, model.PlayerTick)) *Node {
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	}
	n := &Node{
		opts:           opts,
		bus:            bus,
		closed:         make(chan struct{}),
		sources:        make(map[string]bool),
		filters:        make(map[string]bool),
		onPlayerUpdate: onPlayerUpdate,
	}
	for _, s := range opts.Sources {
		n.sources[s] = true
	}
	n.rest = newRestClient(opts, httpClient)
	n.ws = newSocket(n)
	return n
}

// ID returns the numeric pool identifier.
func (n *Node) ID() int { return n.opts.ID }

// Name returns the display name.
func (n *Node) Name() string { return n.opts.Name }

// Region returns the configured region tag.
func (n *Node) Region() string { return n.opts.Region }

// Coordinates returns the configured latitude and longitude.
func (n *Node) Coordinates() (float64, float64) {
	return n.opts.Latitude, n.opts.Longitude
}

// SearchOnly reports whether the node serves searches only.
func (n *Node) SearchOnly() bool { return n.opts.SearchOnly }

// Managed reports whether this process spawned the node.
func (n *Node) Managed() bool { return n.opts.Managed }

// Available reports whether the node can take traffic.
func (n *Node) Available() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.available
}

// SessionID returns the node-assigned session identifier. Changes on every
// reconnect that did not resume.
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Resumed reports whether the last connect resumed a previous session.
func (n *Node) Resumed() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.resumed
}

// Stats returns the latest health snapshot and when it arrived.
func (n *Node) Stats() (model.NodeStats, time.Time) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats, n.statsAt
}

// Penalty returns the current ranking score, lower is better.
func (n *Node) Penalty() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Penalty(n.stats)
}

// HasSource reports whether the node advertises the given source capability.
func (n *Node) HasSource(feature string) bool {
	if feature == "" {
		return true
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sources[feature]
}

// HasFilter reports whether the node advertises the given filter.
func (n *Node) HasFilter(name string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.filters[name]
}

// SupportedFilters returns the advertised filter set.
func (n *Node) SupportedFilters() map[string]bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]bool, len(n.filters))
	for k, v := range n.filters {
		out[k] = v
	}
	return out
}

// Connect starts the websocket maintenance loop. Returns immediately; the
// node flips to available once the ready op arrives.
func (n *Node) Connect() {
	go n.ws.run()
}

// Close tears the node down permanently. With resuming set, the websocket is
// closed without destroying node-side players so a future session can resume
// them.
func (n *Node) Close(resuming bool) {
	n.mu.Lock()
	n.resuming = resuming
	n.available = false
	n.mu.Unlock()
	n.once.Do(func() {
		close(n.closed)
	})
	n.ws.close()
}

func (n *Node) setAvailable(v bool) {
	n.mu.Lock()
	n.available = v
	n.mu.Unlock()
}

func (n *Node) setSession(sessionID string, resumed bool) {
	n.mu.Lock()
	n.sessionID = sessionID
	n.resumed = resumed
	n.available = true
	n.mu.Unlock()
}

func (n *Node) setStats(stats model.NodeStats) {
	n.mu.Lock()
	n.stats = stats
	n.statsAt = time.Now()
	n.mu.Unlock()
}

func (n *Node) setCapabilities(sources, filters []string) {
	n.mu.Lock()
	for _, s := range sources {
		n.sources[s] = true
	}
	for _, f := range filters {
		n.filters[f] = true
	}
	n.mu.Unlock()
}

// refreshInfo pulls /v4/info to learn what the node can do.
func (n *Node) refreshInfo(ctx context.Context) error {
	info, err := n.rest.info(ctx)
	if err != nil {
		return err
	}
	n.setCapabilities(info.SourceManagers, info.Filters)
	return nil
}

// requireSession returns the current session id or the typed transport
// error.
func (n *Node) requireSession() (string, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.available {
		return "", model.ErrNodeUnhealthy
	}
	if n.sessionID == "" {
		return "", model.ErrWebsocketNotConnected
	}
	return n.sessionID, nil
}
