package node

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LinkFM/events"
	"LinkFM/model"
)

func testNode(t *testing.T, m *Manager, opts Options, playing int, load float64) *Node {
	t.Helper()
	opts.BotID = 1
	if opts.ID == 0 {
		opts.ID = m.nextID
		m.nextID++
	}
	n := newNode(opts, &http.Client{}, m.bus, nil)
	n.setSession("session-"+opts.Name, false)
	n.setStats(model.NodeStats{
		Players:        playing + 2,
		PlayingPlayers: playing,
		CPU:            model.CPUStats{Cores: 4, SystemLoad: load},
	})
	m.mu.Lock()
	m.nodes = append(m.nodes, n)
	m.mu.Unlock()
	return n
}

func TestPenaltyGrowsWithLoad(t *testing.T) {
	base := model.NodeStats{PlayingPlayers: 3, CPU: model.CPUStats{SystemLoad: 0.1}}
	busier := model.NodeStats{PlayingPlayers: 3, CPU: model.CPUStats{SystemLoad: 0.8}}
	fuller := model.NodeStats{PlayingPlayers: 9, CPU: model.CPUStats{SystemLoad: 0.1}}

	assert.Less(t, Penalty(base), Penalty(busier))
	assert.Less(t, Penalty(base), Penalty(fuller))
}

func TestPenaltyFrameDeficit(t *testing.T) {
	clean := model.NodeStats{PlayingPlayers: 1}
	lossy := model.NodeStats{
		PlayingPlayers: 1,
		FrameStats:     &model.FrameStats{Sent: 2000, Deficit: 1000, Nulled: 500},
	}
	assert.Less(t, Penalty(clean), Penalty(lossy))
}

func TestPenaltyDeterministic(t *testing.T) {
	stats := model.NodeStats{
		PlayingPlayers: 7,
		CPU:            model.CPUStats{SystemLoad: 0.42},
		FrameStats:     &model.FrameStats{Sent: 3000, Deficit: 120, Nulled: 30},
	}
	first := Penalty(stats)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Penalty(stats))
	}
}

func TestFindBestNodePrefersLowestPenalty(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	busy := testNode(t, m, Options{Name: "busy"}, 50, 0.9)
	idle := testNode(t, m, Options{Name: "idle"}, 1, 0.1)
	_ = busy

	for i := 0; i < 5; i++ {
		n, err := m.FindBestNode(context.Background(), FindOptions{})
		require.NoError(t, err)
		assert.Same(t, idle, n)
	}
}

func TestFindBestNodeSkipsUnavailable(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	idle := testNode(t, m, Options{Name: "idle"}, 0, 0.0)
	busy := testNode(t, m, Options{Name: "busy"}, 40, 0.8)
	idle.setAvailable(false)

	n, err := m.FindBestNode(context.Background(), FindOptions{})
	require.NoError(t, err)
	assert.Same(t, busy, n)
}

func TestFindBestNodeNoneAvailable(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	n := testNode(t, m, Options{Name: "down"}, 0, 0.0)
	n.setAvailable(false)

	_, err := m.FindBestNode(context.Background(), FindOptions{})
	assert.ErrorIs(t, err, model.ErrNoNodeAvailable)
}

func TestFindBestNodeFeatureFilter(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	// The cheapest node lacks the capability and must never win.
	cheap := testNode(t, m, Options{Name: "cheap", Sources: []string{"youtube"}}, 0, 0.0)
	capable := testNode(t, m, Options{Name: "capable", Sources: []string{"youtube", "spotify"}}, 30, 0.7)
	_ = cheap

	n, err := m.FindBestNode(context.Background(), FindOptions{Feature: "spotify"})
	require.NoError(t, err)
	assert.Same(t, capable, n)
}

func TestFindBestNodeNoCapableNode(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	testNode(t, m, Options{Name: "plain", Sources: []string{"youtube"}}, 0, 0.0)

	_, err := m.FindBestNode(context.Background(), FindOptions{Feature: "deezer"})
	var capErr *model.NoCapableNodeError
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, "deezer", capErr.Feature)
}

func TestFindBestNodeRegionTieBreak(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	// Equal penalties; the region match wins.
	testNode(t, m, Options{Name: "us", Region: "us_east"}, 5, 0.3)
	eu := testNode(t, m, Options{Name: "eu", Region: "eu_west"}, 5, 0.3)

	n, err := m.FindBestNode(context.Background(), FindOptions{Region: "eu_west"})
	require.NoError(t, err)
	assert.Same(t, eu, n)
}

func TestFindBestNodeDistanceTieBreak(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	// Equal penalties, no region preference; nearer node wins.
	berlin := testNode(t, m, Options{Name: "berlin", Latitude: 52.52, Longitude: 13.40}, 5, 0.3)
	tokyo := testNode(t, m, Options{Name: "tokyo", Latitude: 35.68, Longitude: 139.69}, 5, 0.3)
	_ = tokyo

	paris := &Coordinates{Latitude: 48.86, Longitude: 2.35}
	n, err := m.FindBestNode(context.Background(), FindOptions{Coordinates: paris})
	require.NoError(t, err)
	assert.Same(t, berlin, n)
}

func TestFindBestNodeExcludesSearchOnly(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	searcher := testNode(t, m, Options{Name: "searcher", SearchOnly: true}, 0, 0.0)
	full := testNode(t, m, Options{Name: "full"}, 20, 0.5)

	n, err := m.FindBestNode(context.Background(), FindOptions{})
	require.NoError(t, err)
	assert.Same(t, full, n)

	n, err = m.FindBestNode(context.Background(), FindOptions{Search: true})
	require.NoError(t, err)
	assert.Same(t, searcher, n)
}

func TestFindBestNodeNotRegion(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	testNode(t, m, Options{Name: "bad", Region: "us_east"}, 0, 0.0)
	other := testNode(t, m, Options{Name: "other", Region: "eu_west"}, 20, 0.5)

	n, err := m.FindBestNode(context.Background(), FindOptions{NotRegion: "us_east"})
	require.NoError(t, err)
	assert.Same(t, other, n)
}

func TestFindBestNodeWaitHonorsContext(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := m.FindBestNode(ctx, FindOptions{Wait: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFindBestNodeWaitPicksUpNewNode(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	done := make(chan struct{})
	var got *Node
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n, err := m.FindBestNode(ctx, FindOptions{Wait: true})
		if err == nil {
			got = n
		}
	}()

	time.Sleep(50 * time.Millisecond)
	added := testNode(t, m, Options{Name: "late"}, 0, 0.0)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never completed")
	}
	assert.Same(t, added, got)
}

func TestRemoveNodeRunsHook(t *testing.T) {
	m := NewManager(1, events.NewBus())
	defer m.bus.Close()

	var migrated *Node
	m.OnNodeRemoved = func(n *Node) { migrated = n }

	n := testNode(t, m, Options{Name: "leaving"}, 0, 0.0)
	m.RemoveNode(n)

	assert.Same(t, n, migrated)
	assert.Empty(t, m.Nodes())

	// Removing twice is a no-op.
	migrated = nil
	m.RemoveNode(n)
	assert.Nil(t, migrated)
}

func TestHasSourceEmptyFeature(t *testing.T) {
	n := newNode(Options{Name: "n"}, &http.Client{}, events.NewBus(), nil)
	assert.True(t, n.HasSource(""))
	assert.False(t, n.HasSource("spotify"))
	n.setCapabilities([]string{"spotify"}, nil)
	assert.True(t, n.HasSource("spotify"))
}

func TestHaversine(t *testing.T) {
	// Paris to Berlin is roughly 880 km.
	d := haversine(48.86, 2.35, 52.52, 13.40)
	assert.InDelta(t, 880, d, 40)
	assert.Zero(t, haversine(10, 20, 10, 20))
}
