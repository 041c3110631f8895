package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LinkFM/config"
	"LinkFM/events"
	"LinkFM/model"
	"LinkFM/node"
	"LinkFM/repository"
)

type fakeCall struct {
	method    string
	update    *model.PlayerUpdate
	noReplace bool
}

type fakeNode struct {
	mu        sync.Mutex
	name      string
	region    string
	available bool
	sources   map[string]bool
	filters   map[string]bool
	calls     []fakeCall
	live      *model.RestPlayer
}

func newFakeNode(name string, sources ...string) *fakeNode {
	n := &fakeNode{
		name:      name,
		available: true,
		sources:   make(map[string]bool),
		filters: map[string]bool{
			model.FilterVolume:    true,
			model.FilterEqualizer: true,
			model.FilterTimescale: true,
		},
	}
	for _, s := range sources {
		n.sources[s] = true
	}
	return n
}

func (n *fakeNode) Name() string   { return n.name }
func (n *fakeNode) Region() string { return n.region }

func (n *fakeNode) Available() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.available
}

func (n *fakeNode) setAvailable(v bool) {
	n.mu.Lock()
	n.available = v
	n.mu.Unlock()
}

func (n *fakeNode) HasSource(feature string) bool {
	if feature == "" {
		return true
	}
	return n.sources[feature]
}

func (n *fakeNode) HasFilter(name string) bool { return n.filters[name] }

func (n *fakeNode) SupportedFilters() map[string]bool { return n.filters }

func (n *fakeNode) UpdatePlayer(ctx context.Context, guildID int64, update *model.PlayerUpdate, noReplace bool) (*model.RestPlayer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fakeCall{method: "update", update: update, noReplace: noReplace})
	return &model.RestPlayer{}, nil
}

func (n *fakeNode) GetPlayer(ctx context.Context, guildID int64) (*model.RestPlayer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.live == nil {
		return nil, model.ErrTrackNotFound
	}
	return n.live, nil
}

func (n *fakeNode) DestroyPlayer(ctx context.Context, guildID int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fakeCall{method: "destroy"})
	return nil
}

func (n *fakeNode) updates() []fakeCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]fakeCall, len(n.calls))
	copy(out, n.calls)
	return out
}

type fakeSelector struct {
	nodes []*fakeNode
}

func (s *fakeSelector) Best(ctx context.Context, opts node.FindOptions) (Node, error) {
	anyAvailable := false
	for _, n := range s.nodes {
		if !n.Available() {
			continue
		}
		anyAvailable = true
		if n.HasSource(opts.Feature) {
			return n, nil
		}
	}
	if anyAvailable && opts.Feature != "" {
		return nil, &model.NoCapableNodeError{Feature: opts.Feature}
	}
	return nil, model.ErrNoNodeAvailable
}

type fakeGateway struct {
	mu        sync.Mutex
	members   map[int64]int
	channels  map[int64]bool
	onConnect func(guildID, channelID int64)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{members: make(map[int64]int), channels: make(map[int64]bool)}
}

func (g *fakeGateway) ConnectVoice(ctx context.Context, guildID, channelID int64, selfDeaf bool) error {
	g.mu.Lock()
	fn := g.onConnect
	g.mu.Unlock()
	if fn != nil {
		go fn(guildID, channelID)
	}
	return nil
}

func (g *fakeGateway) DisconnectVoice(ctx context.Context, guildID int64) error { return nil }

func (g *fakeGateway) setOnConnect(fn func(guildID, channelID int64)) {
	g.mu.Lock()
	g.onConnect = fn
	g.mu.Unlock()
}

func (g *fakeGateway) ChannelMembers(guildID, channelID int64) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.members[channelID], nil
}

func (g *fakeGateway) setMembers(channelID int64, n int) {
	g.mu.Lock()
	g.members[channelID] = n
	g.mu.Unlock()
}

func (g *fakeGateway) ChannelExists(guildID, channelID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.channels[channelID]
}

type fakeRepo struct {
	mu      sync.Mutex
	records map[int64]*model.PlayerStateRecord
	deleted []int64
}

var _ repository.PlayerStateRepository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[int64]*model.PlayerStateRecord)}
}

func (r *fakeRepo) Upsert(ctx context.Context, record *model.PlayerStateRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.GuildID] = record
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, guildID, botID int64) (*model.PlayerStateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[guildID], nil
}

func (r *fakeRepo) Delete(ctx context.Context, guildID, botID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, guildID)
	r.deleted = append(r.deleted, guildID)
	return nil
}

func (r *fakeRepo) All(ctx context.Context, botID int64) ([]*model.PlayerStateRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PlayerStateRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		BotID:            1,
		MaxVolume:        500,
		AutoTaskInterval: time.Hour,
		AlonePauseAfter:  10 * time.Second,
		ReadyWait:        time.Second,
	}
}

func testTrack(encoded, title string) *model.Track {
	return &model.Track{
		Encoded: encoded,
		Info: &model.TrackInfo{
			Identifier: encoded,
			Title:      title,
			Author:     "author",
			Length:     180000,
			IsSeekable: true,
			SourceName: "youtube",
		},
	}
}

type fixture struct {
	player   *Player
	node     *fakeNode
	selector *fakeSelector
	gateway  *fakeGateway
	repo     *fakeRepo
	bus      *events.Bus
}

func newFixture(t *testing.T, nodes ...*fakeNode) *fixture {
	t.Helper()
	if len(nodes) == 0 {
		nodes = []*fakeNode{newFakeNode("n1", "youtube")}
	}
	f := &fixture{
		node:     nodes[0],
		selector: &fakeSelector{nodes: nodes},
		gateway:  newFakeGateway(),
		repo:     newFakeRepo(),
		bus:      events.NewBus(),
	}
	f.player = NewPlayer(Options{
		GuildID:  42,
		BotID:    1,
		Config:   testConfig(),
		Bus:      f.bus,
		Gateway:  f.gateway,
		Selector: f.selector,
		Repo:     f.repo,
	})
	f.gateway.setOnConnect(func(guildID, channelID int64) {
		f.player.OnVoiceServerUpdate(context.Background(), "token", "voice.example.com")
		f.player.OnVoiceStateUpdate(context.Background(), "voice-session", channelID)
	})
	t.Cleanup(f.bus.Close)
	t.Cleanup(func() {
		f.player.closeOnce.Do(func() { close(f.player.done) })
	})
	return f
}

// collect subscribes to one event type and returns a drain function.
func collect(f *fixture, et model.EventType) func() []model.Event {
	var mu sync.Mutex
	var got []model.Event
	f.bus.SubscribeType(et, func(e model.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	return func() []model.Event {
		mu.Lock()
		defer mu.Unlock()
		out := make([]model.Event, len(got))
		copy(out, got)
		return out
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestPlayRequiresConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.player.Play(ctx, PlayOptions{Track: testTrack("encA", "Song A")})
	assert.ErrorIs(t, err, model.ErrNotConnected)
	assert.Nil(t, f.player.Current())
	assert.Equal(t, StateDisconnected, f.player.State())
	assert.Empty(t, f.node.updates())

	// Once a channel is held the same call goes through.
	require.NoError(t, f.player.Connect(ctx, 7, true))
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: testTrack("encA", "Song A")}))
	assert.Equal(t, StatePlaying, f.player.State())
	require.NoError(t, f.player.Disconnect(ctx, 0, false))
}

func TestConnectIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.player.Connect(ctx, 7, true))
	assert.Equal(t, StateIdle, f.player.State())
	assert.EqualValues(t, 7, f.player.ChannelID())

	// Same channel again is a no-op.
	require.NoError(t, f.player.Connect(ctx, 7, true))
	assert.Equal(t, StateIdle, f.player.State())
}

func TestBasicPlayback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	trackB := testTrack("encB", "Track B")
	require.NoError(t, f.player.Enqueue(ctx, 100, trackB))

	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA, Requester: 100}))
	assert.Same(t, trackA, f.player.Current())
	assert.True(t, f.player.IsPlaying())

	before := len(f.node.updates())
	require.NoError(t, f.player.Skip(ctx, 100))

	calls := f.node.updates()
	require.GreaterOrEqual(t, len(calls), before+2)
	stop := calls[before]
	require.NotNil(t, stop.update.EncodedTrack)
	assert.Nil(t, stop.update.EncodedTrack.Value, "skip must stop before starting the next track")
	next := calls[before+1]
	require.NotNil(t, next.update.EncodedTrack)
	require.NotNil(t, next.update.EncodedTrack.Value)
	assert.Equal(t, "encB", *next.update.EncodedTrack.Value)

	assert.Same(t, trackB, f.player.Current())
	assert.True(t, f.player.history.Contains("encA"))
}

func TestSkipOnEmptyQueueEndsPlayback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	drain := collect(f, model.EventQueueEnd)
	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	require.NoError(t, f.player.Skip(ctx, 0))

	assert.Nil(t, f.player.Current())
	assert.Equal(t, StateIdle, f.player.State())
	waitFor(t, func() bool { return len(drain()) == 1 })
}

func TestPlayNoReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	before := len(f.node.updates())

	trackB := testTrack("encB", "Track B")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackB, NoReplace: true}))

	assert.Same(t, trackA, f.player.Current())
	assert.Len(t, f.node.updates(), before)
}

func TestPlayCapabilityError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))
	drain := collect(f, model.EventTrackException)

	track := testTrack("encS", "Spotify Track")
	track.Info.SourceName = "spotify"

	err := f.player.Play(ctx, PlayOptions{Track: track})
	var reqErr *model.RequiresCapabilityError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, "spotify", reqErr.Feature)

	var capErr *model.NoCapableNodeError
	assert.True(t, errors.As(err, &capErr))

	waitFor(t, func() bool { return len(drain()) == 1 })
}

func TestRepeatExclusivity(t *testing.T) {
	f := newFixture(t)

	f.player.SetRepeat(RepeatCurrent)
	assert.Equal(t, RepeatCurrent, f.player.Repeat())

	f.player.SetRepeat(RepeatQueue)
	assert.Equal(t, RepeatQueue, f.player.Repeat())
	f.player.mu.RLock()
	assert.False(t, f.player.repeatCurrent)
	assert.True(t, f.player.repeatQueue)
	f.player.mu.RUnlock()

	f.player.SetRepeat(RepeatOff)
	assert.Equal(t, RepeatOff, f.player.Repeat())
}

func TestRepeatCurrentReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	f.player.SetRepeat(RepeatCurrent)

	f.player.handleTrackEnd(ctx, model.TrackEndEvent{GuildID: 42, Track: trackA, Reason: "finished"})
	assert.Same(t, trackA, f.player.Current())
	assert.False(t, f.player.history.Contains("encA"))
}

func TestTrackEndAdvancesQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	trackB := testTrack("encB", "Track B")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	require.NoError(t, f.player.Enqueue(ctx, 0, trackB))

	f.player.handleTrackEnd(ctx, model.TrackEndEvent{GuildID: 42, Track: trackA, Reason: "finished"})
	assert.Same(t, trackB, f.player.Current())
	assert.True(t, f.player.history.Contains("encA"))

	// A stop reason never auto-advances.
	trackC := testTrack("encC", "Track C")
	require.NoError(t, f.player.Enqueue(ctx, 0, trackC))
	f.player.handleTrackEnd(ctx, model.TrackEndEvent{GuildID: 42, Track: trackB, Reason: "stopped"})
	assert.Same(t, trackB, f.player.Current())
}

func TestSeekValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	assert.ErrorIs(t, f.player.Seek(ctx, 1000), model.ErrTrackNotFound)

	stream := testTrack("encL", "Live")
	stream.Info.IsStream = true
	stream.Info.IsSeekable = false
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: stream}))
	assert.ErrorIs(t, f.player.Seek(ctx, 1000), model.ErrNotSeekable)

	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	require.NoError(t, f.player.Seek(ctx, 999999999))

	calls := f.node.updates()
	last := calls[len(calls)-1]
	require.NotNil(t, last.update.Position)
	assert.EqualValues(t, trackA.Info.Length, *last.update.Position, "seek past the end clamps to duration")
}

func TestSetVolumeClamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	require.NoError(t, f.player.SetVolume(ctx, 9000))
	assert.Equal(t, 500, f.player.Volume())

	require.NoError(t, f.player.SetVolume(ctx, -5))
	assert.Equal(t, 0, f.player.Volume())
}

func TestFilterUnsupported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	err := f.player.SetEcho(ctx, &model.Echo{Delay: 0.5, Decay: 0.3})
	var filterErr *model.FilterUnsupportedError
	require.True(t, errors.As(err, &filterErr))
	assert.Equal(t, model.FilterEcho, filterErr.Filter)
}

func TestApplyFiltersMergeAndReplace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	require.NoError(t, f.player.SetTimescale(ctx, &model.Timescale{Speed: 1.5}))
	require.NoError(t, f.player.ApplyFilters(ctx, &model.Filters{Equalizer: []model.EQBand{{Band: 0, Gain: 0.25}}}, false))

	merged := f.player.Filters()
	assert.NotNil(t, merged.Timescale, "merge keeps unmentioned filters")
	assert.NotNil(t, merged.Equalizer)

	require.NoError(t, f.player.ApplyFilters(ctx, &model.Filters{Equalizer: []model.EQBand{{Band: 1, Gain: 0.1}}}, true))
	replaced := f.player.Filters()
	assert.Nil(t, replaced.Timescale, "replace-all resets unmentioned filters")
	assert.NotNil(t, replaced.Equalizer)
}

func TestAutoPauseAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))
	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))

	pausedEvents := collect(f, model.EventPlayerAutoPaused)
	resumedEvents := collect(f, model.EventPlayerAutoResumed)

	f.gateway.setMembers(7, 0)
	t0 := time.Now()
	f.player.tick(t0)
	assert.False(t, f.player.Paused(), "threshold not reached yet")

	f.player.tick(t0.Add(11 * time.Second))
	assert.True(t, f.player.Paused())
	assert.True(t, f.player.AutoPaused())
	assert.Equal(t, StateAutoPaused, f.player.State())
	waitFor(t, func() bool { return len(pausedEvents()) == 1 })

	f.gateway.setMembers(7, 2)
	f.player.tick(t0.Add(12 * time.Second))
	assert.False(t, f.player.Paused())
	assert.False(t, f.player.AutoPaused())
	assert.Equal(t, StatePlaying, f.player.State())
	waitFor(t, func() bool { return len(resumedEvents()) == 1 })
}

func TestAutoResumeNeverOverridesUserPause(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))
	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))

	require.NoError(t, f.player.SetPause(ctx, true))
	f.gateway.setMembers(7, 3)
	f.player.tick(time.Now())

	assert.True(t, f.player.Paused(), "a user pause survives members rejoining")
}

func TestNodeFailover(t *testing.T) {
	nodeA := newFakeNode("a", "youtube")
	nodeB := newFakeNode("b", "youtube")
	f := newFixture(t, nodeA, nodeB)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	require.NoError(t, f.player.SetVolume(ctx, 80))
	require.NoError(t, f.player.SetTimescale(ctx, &model.Timescale{Speed: 1.25}))

	moved := collect(f, model.EventPlayerMoved)
	nodeA.setAvailable(false)
	require.NoError(t, f.player.ChangeToBestNode(ctx, false))

	assert.Equal(t, Node(nodeB), f.player.Node())

	calls := nodeB.updates()
	require.NotEmpty(t, calls)
	resume := calls[len(calls)-1].update
	require.NotNil(t, resume.EncodedTrack)
	require.NotNil(t, resume.EncodedTrack.Value)
	assert.Equal(t, "encA", *resume.EncodedTrack.Value)
	require.NotNil(t, resume.Volume)
	assert.Equal(t, 80, *resume.Volume)
	require.NotNil(t, resume.Filters)
	assert.NotNil(t, resume.Filters.Timescale, "filters reapply on the new node")
	require.NotNil(t, resume.Voice)

	waitFor(t, func() bool { return len(moved()) == 1 })
}

func TestChangeToBestNodeNoOpWhenBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))
	before := len(f.node.updates())

	require.NoError(t, f.player.ChangeToBestNode(ctx, false))
	assert.Len(t, f.node.updates(), before)
}

func TestRestoreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	trackB := testTrack("encB", "Track B")
	record := &model.PlayerStateRecord{
		GuildID:   42,
		BotID:     1,
		ChannelID: 7,
		Volume:    80,
		Position:  30000,
		Current:   model.TrackSnapshotJSON{Snapshot: model.SnapshotTrack(trackA)},
		Queue:     model.TrackSnapshotList{*model.SnapshotTrack(trackB)},
	}
	require.NoError(t, f.repo.Upsert(ctx, record))

	require.NoError(t, f.player.Restore(ctx, record, 100))
	require.NotNil(t, f.player.Current())
	assert.Equal(t, "encA", f.player.Current().Encoded)
	assert.Equal(t, 80, f.player.Volume())
	assert.Equal(t, 1, f.player.queue.Size())
	assert.Contains(t, f.repo.deleted, int64(42), "restore deletes the persisted row")

	// A second restore with a different record is a no-op.
	other := &model.PlayerStateRecord{
		GuildID: 42, BotID: 1, ChannelID: 7, Volume: 10,
		Current: model.TrackSnapshotJSON{Snapshot: model.SnapshotTrack(trackB)},
	}
	require.NoError(t, f.player.Restore(ctx, other, 100))
	assert.Equal(t, "encA", f.player.Current().Encoded)
	assert.Equal(t, 80, f.player.Volume())
}

func TestRestoreNodeLiveStateWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	trackA := testTrack("encA", "Track A")
	trackB := testTrack("encB", "Track B")
	f.node.live = &model.RestPlayer{
		Track:  trackB,
		Volume: 60,
		Paused: false,
		State:  model.PlayerTick{Position: 42000},
	}

	record := &model.PlayerStateRecord{
		GuildID: 42, BotID: 1, ChannelID: 7, Volume: 80, Position: 1000,
		Current: model.TrackSnapshotJSON{Snapshot: model.SnapshotTrack(trackA)},
	}
	require.NoError(t, f.player.Restore(ctx, record, 0))

	assert.Equal(t, "encB", f.player.Current().Encoded, "node live state wins over the record")
	assert.Equal(t, 60, f.player.Volume())
}

func TestDisconnectClearsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))
	trackA := testTrack("encA", "Track A")
	require.NoError(t, f.player.Play(ctx, PlayOptions{Track: trackA}))
	require.NoError(t, f.player.Enqueue(ctx, 0, testTrack("encB", "Track B")))

	closed := make(chan int64, 1)
	f.player.onClose = func(guildID int64) { closed <- guildID }

	require.NoError(t, f.player.Disconnect(ctx, 100, false))

	assert.Equal(t, StateDisconnected, f.player.State())
	assert.Nil(t, f.player.Current())
	assert.True(t, f.player.queue.Empty())
	assert.EqualValues(t, 42, <-closed)

	// Active session state was persisted before teardown.
	saved, err := f.repo.Get(ctx, 42, 1)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "encA", saved.Current.Snapshot.Encoded)

	// Destroy reached the node because this was not a resume.
	var destroyed bool
	for _, call := range f.node.updates() {
		if call.method == "destroy" {
			destroyed = true
		}
	}
	assert.True(t, destroyed)
}

func TestAutoplayFallbackSkipsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.player.Connect(ctx, 7, true))

	heard := testTrack("encH", "Heard")
	fresh := testTrack("encF", "Fresh")
	f.player.history.Put(heard)
	f.player.SetAutoPlay(true, []*model.Track{heard, fresh})

	require.NoError(t, f.player.Play(ctx, PlayOptions{}))
	require.NotNil(t, f.player.Current())
	assert.Equal(t, "encF", f.player.Current().Encoded)
}

func TestControllerCreateNeverDuplicates(t *testing.T) {
	f := newFixture(t)
	c := NewController(ControllerOptions{
		Config:   testConfig(),
		Bus:      f.bus,
		Gateway:  f.gateway,
		Selector: f.selector,
		Repo:     f.repo,
	})
	ctx := context.Background()
	f.gateway.setOnConnect(func(guildID, channelID int64) {
		if p := c.Get(guildID); p != nil {
			p.OnVoiceServerUpdate(ctx, "token", "voice.example.com")
			p.OnVoiceStateUpdate(ctx, "voice-session", channelID)
		}
	})

	p1, err := c.Create(ctx, 99, 7, true)
	require.NoError(t, err)
	p2, err := c.Create(ctx, 99, 7, true)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Len(t, c.Players(), 1)

	require.NoError(t, p1.Disconnect(ctx, 0, false))
	assert.Nil(t, c.Get(99))
}

func TestRestoreOneDeletesStaleRecords(t *testing.T) {
	f := newFixture(t)
	c := NewController(ControllerOptions{
		Config:   testConfig(),
		Bus:      f.bus,
		Gateway:  f.gateway,
		Selector: f.selector,
		Repo:     f.repo,
	})
	ctx := context.Background()

	// No current track: nothing worth rebuilding.
	noTrack := &model.PlayerStateRecord{GuildID: 200, BotID: 1, ChannelID: 7}
	// Channel vanished while the process was down.
	goneChannel := &model.PlayerStateRecord{
		GuildID:   201,
		BotID:     1,
		ChannelID: 999,
		Current:   model.TrackSnapshotJSON{Snapshot: model.SnapshotTrack(testTrack("encA", "Song A"))},
	}
	f.gateway.channels[7] = true

	c.restoreOne(ctx, noTrack, 0)
	c.restoreOne(ctx, goneChannel, 0)

	f.repo.mu.Lock()
	deleted := append([]int64(nil), f.repo.deleted...)
	f.repo.mu.Unlock()
	assert.ElementsMatch(t, []int64{200, 201}, deleted)
	assert.Nil(t, c.Get(200))
	assert.Nil(t, c.Get(201))
}

func TestRestoreOneRebuildsSession(t *testing.T) {
	f := newFixture(t)
	c := NewController(ControllerOptions{
		Config:   testConfig(),
		Bus:      f.bus,
		Gateway:  f.gateway,
		Selector: f.selector,
		Repo:     f.repo,
	})
	ctx := context.Background()
	f.gateway.setOnConnect(func(guildID, channelID int64) {
		if p := c.Get(guildID); p != nil {
			p.OnVoiceServerUpdate(ctx, "token", "voice.example.com")
			p.OnVoiceStateUpdate(ctx, "voice-session", channelID)
		}
	})
	f.gateway.channels[7] = true

	record := &model.PlayerStateRecord{
		GuildID:   300,
		BotID:     1,
		ChannelID: 7,
		Volume:    70,
		Shuffle:   true,
		Position:  5000,
		Current:   model.TrackSnapshotJSON{Snapshot: model.SnapshotTrack(testTrack("encA", "Song A"))},
		Queue: model.TrackSnapshotList{
			*model.SnapshotTrack(testTrack("encB", "Song B")),
		},
	}
	c.restoreOne(ctx, record, 0)

	p := c.Get(300)
	require.NotNil(t, p)
	require.NotNil(t, p.Current())
	assert.Equal(t, "encA", p.Current().Encoded)
	assert.Equal(t, 70, p.Volume())
	assert.True(t, p.Shuffle())
	assert.Equal(t, 1, p.Queue().Size())

	f.repo.mu.Lock()
	deleted := append([]int64(nil), f.repo.deleted...)
	f.repo.mu.Unlock()
	assert.Contains(t, deleted, int64(300))

	require.NoError(t, p.Disconnect(ctx, 0, false))
}
