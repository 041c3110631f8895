package node

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"LinkFM/config"
	"LinkFM/events"
	"LinkFM/logger"
	"LinkFM/model"
)

const (
	// findRetryInterval paces the wait loop in FindBestNode. The wait itself
	// is bounded only by the caller's context.
	findRetryInterval = 250 * time.Millisecond

	statsPollInterval = 30 * time.Second
)

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// FindOptions narrows and ranks node selection.
type FindOptions struct {
	Region      string
	NotRegion   string
	Feature     string
	Coordinates *Coordinates
	// Search allows search-only nodes into the candidate set.
	Search bool
	// Wait suspends until a qualifying node appears instead of failing.
	// Bounded by the caller's context only.
	Wait bool
}

// Manager owns the node pool. Pool mutation is safe against concurrent
// selection; every node keeps its own connection alive independently.
type Manager struct {
	mu     sync.RWMutex
	nodes  []*Node
	nextID int

	bus        *events.Bus
	httpClient *http.Client
	botID      int64

	// OnNodeRemoved lets the session layer migrate players off a node that
	// is leaving the pool. Called outside the manager lock.
	OnNodeRemoved func(n *Node)

	// OnPlayerUpdate receives position ticks relayed from node websockets.
	OnPlayerUpdate func(guildID int64, tick model.PlayerTick)

	pollCancel context.CancelFunc
	pollOnce   sync.Once
}

// NewManager creates an empty pool.
func NewManager(botID int64, bus *events.Bus) *Manager {
	return &Manager{
		bus:        bus,
		botID:      botID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		nextID:     1,
	}
}

// AddNode registers a node and starts connecting it.
func (m *Manager) AddNode(opts Options) *Node {
	m.mu.Lock()
	if opts.ID == 0 {
		opts.ID = m.nextID
	}
	if opts.ID >= m.nextID {
		m.nextID = opts.ID + 1
	}
	opts.BotID = m.botID
	n := newNode(opts, m.httpClient, m.bus, m.relayPlayerUpdate)
	m.nodes = append(m.nodes, n)
	m.mu.Unlock()

	logger.Info("node added to pool",
		logger.String("node", n.Name()),
		logger.Int("id", n.ID()),
		logger.String("region", n.Region()))

	n.Connect()
	return n
}

// AddFromConfig registers every node in a pool definition.
func (m *Manager) AddFromConfig(cfgs []config.NodeConfig) {
	for _, c := range cfgs {
		m.AddNode(Options{
			Name:       c.Name,
			Host:       c.Host,
			Port:       c.Port,
			Password:   c.Password,
			SSL:        c.SSL,
			Region:     c.Region,
			Latitude:   c.Latitude,
			Longitude:  c.Longitude,
			SearchOnly: c.SearchOnly,
			Managed:    c.Managed,
			Sources:    c.Sources,
		})
	}
}

// ApplyConfig reconciles the pool against a fresh definition: unknown nodes
// are added, vanished nodes are removed. Matching is by host:port.
func (m *Manager) ApplyConfig(cfgs []config.NodeConfig) {
	current := make(map[string]*Node)
	m.mu.RLock()
	for _, n := range m.nodes {
		key := fmt.Sprintf("%s:%d", n.opts.Host, n.opts.Port)
		current[key] = n
	}
	m.mu.RUnlock()

	wanted := make(map[string]bool)
	for _, c := range cfgs {
		key := fmt.Sprintf("%s:%d", c.Host, c.Port)
		wanted[key] = true
		if _, ok := current[key]; !ok {
			m.AddNode(Options{
				Name: c.Name, Host: c.Host, Port: c.Port, Password: c.Password,
				SSL: c.SSL, Region: c.Region, Latitude: c.Latitude,
				Longitude: c.Longitude, SearchOnly: c.SearchOnly,
				Managed: c.Managed, Sources: c.Sources,
			})
		}
	}
	for key, n := range current {
		if !wanted[key] {
			m.RemoveNode(n)
		}
	}
}


// RemoveNode takes a node out of the pool. Sessions bound to it are migrated
// cooperatively through the removal hook, then the node is closed.
func (m *Manager) RemoveNode(target *Node) {
	m.mu.Lock()
	found := false
	for i, n := range m.nodes {
		if n == target {
			m.nodes = append(m.nodes[:i], m.nodes[i+1:]...)
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return
	}

	logger.Info("node removed from pool", logger.String("node", target.Name()))

	if m.OnNodeRemoved != nil {
		m.OnNodeRemoved(target)
	}
	target.Close(false)
}

// Nodes returns a snapshot of the pool.
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// NodeByName finds a pool member by display name, or nil.
func (m *Manager) NodeByName(name string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, n := range m.nodes {
		if n.Name() == name {
			return n
		}
	}
	return nil
}

func (m *Manager) relayPlayerUpdate(guildID int64, tick model.PlayerTick) {
	if m.OnPlayerUpdate != nil {
		m.OnPlayerUpdate(guildID, tick)
	}
}

// ConnectToAll kicks off connection attempts for the whole pool. Individual
// nodes keep retrying on their own; this only fans out the initial attempts.
func (m *Manager) ConnectToAll() {
	for _, n := range m.Nodes() {
		if !n.Available() {
			n.Connect()
		}
	}
}

// WaitUntilReady blocks until every registered node is available or the
// context expires. Callers that can live with a partial pool should bound
// this with a timeout and check AvailableCount afterwards.
func (m *Manager) WaitUntilReady(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		ready := true
		for _, n := range m.Nodes() {
			if !n.Available() {
				ready = false
				break
			}
		}
		if ready && len(m.Nodes()) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// AvailableCount returns how many pool members can take traffic.
func (m *Manager) AvailableCount() int {
	count := 0
	for _, n := range m.Nodes() {
		if n.Available() {
			count++
		}
	}
	return count
}

// StartStatsPolling fetches node health on an interval alongside the pushed
// websocket stats.
func (m *Manager) StartStatsPolling(ctx context.Context) {
	m.pollOnce.Do(func() {
		pollCtx, cancel := context.WithCancel(ctx)
		m.pollCancel = cancel
		go func() {
			ticker := time.NewTicker(statsPollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-pollCtx.Done():
					return
				case <-ticker.C:
					for _, n := range m.Nodes() {
						if !n.Available() {
							continue
						}
						go func(n *Node) {
							reqCtx, cancel := context.WithTimeout(pollCtx, 10*time.Second)
							defer cancel()
							if _, err := n.FetchStats(reqCtx); err != nil {
								logger.Debug("stats poll failed",
									logger.String("node", n.Name()),
									logger.ErrorField(err))
							}
						}(n)
					}
				}
			}
		}()
	})
}

// Shutdown closes every node. With resuming set, node-side players are left
// alive so a restarted process can resume them.
func (m *Manager) Shutdown(resuming bool) {
	if m.pollCancel != nil {
		m.pollCancel()
	}
	for _, n := range m.Nodes() {
		n.Close(resuming)
	}
}

// haversine returns the great-circle distance in kilometers.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// FindBestNode selects the best node for a request. Candidates must be
// available, allowed by the search-only rule, outside NotRegion, and
// advertise Feature when one is named. Ranking is by penalty ascending with
// ties broken by region match and then by distance from Coordinates. With
// Wait set the call suspends, re-evaluating until the caller's context
// expires; the loop itself has no internal cap.
func (m *Manager) FindBestNode(ctx context.Context, opts FindOptions) (*Node, error) {
	for {
		n, err := m.findOnce(opts)
		if n != nil || !opts.Wait {
			return n, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(findRetryInterval):
		}
	}
}

func (m *Manager) findOnce(opts FindOptions) (*Node, error) {
	all := m.Nodes()

	var candidates []*Node
	anyAvailable := false
	for _, n := range all {
		if !n.Available() {
			continue
		}
		if n.SearchOnly() && !opts.Search {
			continue
		}
		if opts.NotRegion != "" && n.Region() == opts.NotRegion {
			continue
		}
		anyAvailable = true
		if !n.HasSource(opts.Feature) {
			continue
		}
		candidates = append(candidates, n)
	}

	if len(candidates) == 0 {
		if anyAvailable && opts.Feature != "" {
			return nil, &model.NoCapableNodeError{Feature: opts.Feature}
		}
		return nil, model.ErrNoNodeAvailable
	}

	type scored struct {
		n           *Node
		penalty     float64
		regionMatch bool
		distance    float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, n := range candidates {
		s := scored{n: n, penalty: n.Penalty()}
		s.regionMatch = opts.Region != "" && n.Region() == opts.Region
		if opts.Coordinates != nil {
			lat, lon := n.Coordinates()
			s.distance = haversine(opts.Coordinates.Latitude, opts.Coordinates.Longitude, lat, lon)
		}
		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		const epsilon = 1e-9
		if math.Abs(ranked[i].penalty-ranked[j].penalty) > epsilon {
			return ranked[i].penalty < ranked[j].penalty
		}
		if ranked[i].regionMatch != ranked[j].regionMatch {
			return ranked[i].regionMatch
		}
		return ranked[i].distance < ranked[j].distance
	})

	return ranked[0].n, nil
}
