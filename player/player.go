// Package player implements the per-guild playback session: the state
// machine over a bound node, its queue and history, the filter chain, and
// the periodic auto behaviours.
package player

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"LinkFM/codec"
	"LinkFM/config"
	"LinkFM/events"
	"LinkFM/logger"
	"LinkFM/model"
	"LinkFM/node"
	"LinkFM/queue"
	"LinkFM/repository"
)

// Node is the slice of a pool node a session talks to. *node.Node satisfies
// it; tests substitute fakes.
type Node interface {
	Name() string
	Region() string
	Available() bool
	HasSource(feature string) bool
	HasFilter(name string) bool
	SupportedFilters() map[string]bool
	UpdatePlayer(ctx context.Context, guildID int64, update *model.PlayerUpdate, noReplace bool) (*model.RestPlayer, error)
	GetPlayer(ctx context.Context, guildID int64) (*model.RestPlayer, error)
	DestroyPlayer(ctx context.Context, guildID int64) error
}

// Selector picks a node for a session. The manager is adapted to this in the
// client wiring.
type Selector interface {
	Best(ctx context.Context, opts node.FindOptions) (Node, error)
}

// VoiceGateway abstracts the chat platform's voice signalling. The library
// never talks to the platform gateway itself; the embedding bot forwards
// voice state and server updates into the session.
type VoiceGateway interface {
	ConnectVoice(ctx context.Context, guildID, channelID int64, selfDeaf bool) error
	DisconnectVoice(ctx context.Context, guildID int64) error

	// ChannelMembers counts non-bot members in a voice channel.
	ChannelMembers(guildID, channelID int64) (int, error)
	ChannelExists(guildID, channelID int64) bool
}

// State is the session lifecycle position.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateIdle
	StatePlaying
	StatePaused
	// StateAutoPaused is a system pause, distinct from a user pause so the
	// alone-resume behaviour never resumes over a user's explicit choice.
	StateAutoPaused
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateAutoPaused:
		return "autopaused"
	default:
		return "unknown"
	}
}

// RepeatMode is the three-way exclusive repeat setting.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatCurrent
	RepeatQueue
)

// Options wires a session's collaborators.
type Options struct {
	GuildID  int64
	BotID    int64
	Config   *config.Config
	Bus      *events.Bus
	Gateway  VoiceGateway
	Selector Selector
	Repo     repository.PlayerStateRepository

	// OnClose deregisters the session from its controller.
	OnClose func(guildID int64)

	// QueueSize bounds the queue; zero means unbounded.
	QueueSize int
}

// PlayOptions parameterizes one Play call. A nil Track pulls from the queue.
type PlayOptions struct {
	Track     *model.Track
	Requester int64
	StartTime int64 // milliseconds
	EndTime   int64 // milliseconds, zero plays to the end
	NoReplace bool
	Node      Node
}

// Player is one guild's playback session.
type Player struct {
	guildID int64
	botID   int64

	cfg      *config.Config
	bus      *events.Bus
	gateway  VoiceGateway
	selector Selector
	repo     repository.PlayerStateRepository
	onClose  func(guildID int64)

	queue   *queue.Queue[*model.Track]
	history *queue.History

	// queueMu serializes queue admission, playMu serializes play/skip/stop
	// RPC sequences. Two locks so enqueueing never waits behind a node
	// round trip.
	queueMu sync.Mutex
	playMu  sync.Mutex

	mu            sync.RWMutex
	node          Node
	state         State
	channelID     int64
	current       *model.Track
	volume        int
	paused        bool
	autoPaused    bool
	repeatCurrent bool
	repeatQueue   bool
	shuffle       bool
	autoPlay      bool
	autoPlaylist  []*model.Track
	selfDeaf      bool
	filters       model.Filters
	voice         model.VoiceState
	position      int64
	positionAt    time.Time
	wsConnected   bool
	ping          int64
	restored      bool
	lastTrack     *model.TrackSnapshot

	// auto-behaviour countdown starts; zero while the condition is absent
	aloneSince time.Time
	emptySince time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewPlayer creates a session and starts its auto-behaviour loop.
func NewPlayer(opts Options) *Player {
	p := &Player{
		guildID:  opts.GuildID,
		botID:    opts.BotID,
		cfg:      opts.Config,
		bus:      opts.Bus,
		gateway:  opts.Gateway,
		selector: opts.Selector,
		repo:     opts.Repo,
		onClose:  opts.OnClose,
		queue:    queue.New[*model.Track](opts.QueueSize),
		history:  queue.NewHistory(0),
		state:    StateDisconnected,
		volume:   100,
		done:     make(chan struct{}),
	}
	go p.runTasks()
	return p
}

// GuildID returns the owning guild.
func (p *Player) GuildID() int64 { return p.guildID }

// ChannelID returns the bound voice channel, zero when disconnected.
func (p *Player) ChannelID() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channelID
}

// Node returns the bound node, or nil.
func (p *Player) Node() Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.node
}

// State returns the lifecycle position.
func (p *Player) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Current returns the active track, or nil.
func (p *Player) Current() *model.Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// IsPlaying reports whether a track is active and not paused.
func (p *Player) IsPlaying() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current != nil && p.state == StatePlaying
}

// Paused reports whether playback is paused, by the user or the system.
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// AutoPaused reports whether the system paused playback for an empty
// channel.
func (p *Player) AutoPaused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoPaused
}

// Volume returns the current volume.
func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// Repeat returns the active repeat mode.
func (p *Player) Repeat() RepeatMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case p.repeatCurrent:
		return RepeatCurrent
	case p.repeatQueue:
		return RepeatQueue
	default:
		return RepeatOff
	}
}

// Shuffle reports whether shuffle is enabled.
func (p *Player) Shuffle() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.shuffle
}

// Queue returns the session queue for direct inspection and admission.
func (p *Player) Queue() *queue.Queue[*model.Track] { return p.queue }

// History returns the play history ring.
func (p *Player) History() *queue.History { return p.history }

// Filters returns a copy of the active filter chain.
func (p *Player) Filters() model.Filters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filters
}

// Voice returns the current voice-handshake triple.
func (p *Player) Voice() model.VoiceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voice
}

// Position estimates the playback position in milliseconds, extrapolating
// from the last node tick through the active timescale.
func (p *Player) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return 0
	}
	pos := p.position
	if p.state == StatePlaying && !p.paused && !p.positionAt.IsZero() {
		elapsed := float64(time.Since(p.positionAt).Milliseconds())
		pos += int64(elapsed * p.filters.Timescale.Multiplier())
	}
	if p.current.Info != nil && !p.current.Info.IsStream && pos > p.current.Info.Length {
		pos = p.current.Info.Length
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// Enqueue appends tracks to the queue, tagging the requester.
func (p *Player) Enqueue(ctx context.Context, requester int64, tracks ...*model.Track) error {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, t := range tracks {
		if t.Requester == 0 {
			t.Requester = requester
		}
	}
	if err := p.queue.Put(ctx, tracks...); err != nil {
		return err
	}
	p.mu.Lock()
	p.emptySince = time.Time{}
	p.mu.Unlock()
	return nil
}

// EnqueueNext inserts tracks at the head of the queue.
func (p *Player) EnqueueNext(ctx context.Context, requester int64, tracks ...*model.Track) error {
	p.queueMu.Lock()
	defer p.queueMu.Unlock()
	for _, t := range tracks {
		if t.Requester == 0 {
			t.Requester = requester
		}
	}
	return p.queue.PutAt(ctx, 0, tracks...)
}

// Connect binds the session to a voice channel. A no-op when already
// connected to the same channel; a channel change moves the session without
// interrupting playback.
func (p *Player) Connect(ctx context.Context, channelID int64, selfDeaf bool) error {
	p.mu.Lock()
	if p.state != StateDisconnected && p.channelID == channelID {
		p.mu.Unlock()
		return nil
	}
	wasConnected := p.state != StateDisconnected
	if !wasConnected {
		p.state = StateConnecting
	}
	p.channelID = channelID
	p.selfDeaf = selfDeaf
	p.mu.Unlock()

	if p.Node() == nil {
		n, err := p.selector.Best(ctx, node.FindOptions{})
		if err != nil {
			p.mu.Lock()
			p.state = StateDisconnected
			p.channelID = 0
			p.mu.Unlock()
			return err
		}
		p.mu.Lock()
		p.node = n
		p.mu.Unlock()
	}

	if err := p.gateway.ConnectVoice(ctx, p.guildID, channelID, selfDeaf); err != nil {
		p.mu.Lock()
		p.state = StateDisconnected
		p.channelID = 0
		p.mu.Unlock()
		return err
	}

	if err := p.waitForVoice(ctx); err != nil {
		return err
	}
	if err := p.pushVoice(ctx); err != nil {
		return err
	}

	p.mu.Lock()
	if !wasConnected {
		p.state = StateIdle
	}
	p.mu.Unlock()
	return nil
}

// waitForVoice blocks until the voice triple is complete. Bounded only by
// the caller's context.
func (p *Player) waitForVoice(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if p.Voice().Complete() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Player) pushVoice(ctx context.Context) error {
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	voice := p.Voice()
	if !voice.Complete() {
		return nil
	}
	_, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{Voice: &voice}, false)
	return err
}

// OnVoiceServerUpdate feeds a platform voice-server update into the session.
func (p *Player) OnVoiceServerUpdate(ctx context.Context, token, endpoint string) {
	p.mu.Lock()
	p.voice.Token = token
	p.voice.Endpoint = endpoint
	complete := p.voice.Complete()
	p.mu.Unlock()
	if complete {
		if err := p.pushVoice(ctx); err != nil {
			logger.Warn("failed to forward voice server update",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}
}

// OnVoiceStateUpdate feeds the bot's own voice-state update into the
// session. A zero channel means the platform dropped the connection.
func (p *Player) OnVoiceStateUpdate(ctx context.Context, sessionID string, channelID int64) {
	if channelID == 0 {
		p.mu.Lock()
		p.voice = model.VoiceState{}
		p.mu.Unlock()
		return
	}
	p.mu.Lock()
	p.voice.SessionID = sessionID
	p.channelID = channelID
	complete := p.voice.Complete()
	p.mu.Unlock()
	if complete {
		if err := p.pushVoice(ctx); err != nil {
			logger.Warn("failed to forward voice state update",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}
}

// Play starts a track, or the next queued one when opts.Track is nil. With
// NoReplace set and a track already active the call is a no-op.
func (p *Player) Play(ctx context.Context, opts PlayOptions) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()
	return p.playLocked(ctx, opts, false)
}

func (p *Player) playLocked(ctx context.Context, opts PlayOptions, bypassRepeat bool) error {
	p.mu.RLock()
	connected := p.state != StateDisconnected && p.state != StateConnecting
	active := p.current != nil && (p.state == StatePlaying || p.state == StatePaused || p.state == StateAutoPaused)
	outgoing := p.current
	repeatCurrent := p.repeatCurrent && !bypassRepeat
	repeatQueue := p.repeatQueue && !bypassRepeat
	p.mu.RUnlock()

	// A track may only hold the slot while a voice channel is held.
	if !connected {
		return model.ErrNotConnected
	}

	if opts.NoReplace && active {
		return nil
	}

	t := opts.Track
	if t == nil {
		if repeatCurrent && outgoing != nil {
			t = outgoing
		} else {
			if repeatQueue && outgoing != nil {
				if err := p.queue.Put(ctx, outgoing); err != nil && !errors.Is(err, queue.ErrCleared) {
					logger.Warn("failed to re-enqueue for queue repeat",
						logger.Int64("guild", p.guildID), logger.ErrorField(err))
				}
			}
			t = p.nextTrack()
		}
	}
	if t == nil {
		p.mu.Lock()
		p.current = nil
		if p.state == StatePlaying || p.state == StatePaused || p.state == StateAutoPaused {
			p.state = StateIdle
		}
		p.mu.Unlock()
		p.bus.Dispatch(model.QueueEndEvent{GuildID: p.guildID})
		return nil
	}
	if opts.Requester != 0 {
		t.Requester = opts.Requester
	}

	n, changed, err := p.ensureNode(ctx, t, opts.Node)
	if err != nil {
		var capErr *model.NoCapableNodeError
		if errors.As(err, &capErr) {
			reqErr := &model.RequiresCapabilityError{Feature: capErr.Feature, Track: t}
			p.bus.Dispatch(model.TrackExceptionEvent{
				GuildID: p.guildID,
				Track:   t,
				Message: reqErr.Error(),
				Kind:    model.ErrorKindSuspicious,
			})
			return reqErr
		}
		return err
	}

	update := &model.PlayerUpdate{
		EncodedTrack: model.StringValue(t.Encoded),
	}
	vol := p.Volume()
	update.Volume = &vol
	pausedFalse := false
	update.Paused = &pausedFalse
	switch {
	case opts.StartTime > 0:
		start := opts.StartTime
		update.Position = &start
	case t.LastPosition > 0:
		start := t.LastPosition
		update.Position = &start
	}
	if opts.EndTime > 0 {
		end := opts.EndTime
		update.EndTime = &end
	}
	if f := p.Filters(); !f.IsEmpty() {
		update.Filters = f.Strip(n.SupportedFilters())
	}
	if changed {
		if voice := p.Voice(); voice.Complete() {
			update.Voice = &voice
		}
	}

	if _, err := n.UpdatePlayer(ctx, p.guildID, update, opts.NoReplace); err != nil {
		return err
	}

	var startPos int64
	if update.Position != nil {
		startPos = *update.Position
	}
	p.mu.Lock()
	p.current = t
	p.paused = false
	p.autoPaused = false
	p.state = StatePlaying
	p.position = startPos
	p.positionAt = time.Now()
	p.emptySince = time.Time{}
	if outgoing != nil && outgoing != t {
		p.lastTrack = model.SnapshotTrack(outgoing)
	}
	p.mu.Unlock()
	return nil
}

// nextTrack pulls the next queued track, falling back to a random autoplay
// pick that has not been heard recently.
func (p *Player) nextTrack() *model.Track {
	if t, err := p.queue.GetAt(0); err == nil {
		return t
	}
	p.mu.RLock()
	autoPlay := p.autoPlay
	playlist := p.autoPlaylist
	p.mu.RUnlock()
	if !autoPlay || len(playlist) == 0 {
		return nil
	}
	candidates := make([]*model.Track, 0, len(playlist))
	for _, t := range playlist {
		if !p.history.Contains(t.EncodedHandle()) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[rand.Intn(len(candidates))]
}

// ensureNode returns a node able to serve the track, preferring the
// explicitly requested one, then the bound one, then the best in the pool.
// The bool reports whether the session switched node.
func (p *Player) ensureNode(ctx context.Context, t *model.Track, preferred Node) (Node, bool, error) {
	feature := t.RequiresCapability()
	bound := p.Node()

	pick := preferred
	if pick == nil {
		pick = bound
	}
	if pick != nil && pick.Available() && pick.HasSource(feature) {
		if pick != bound {
			p.mu.Lock()
			p.node = pick
			p.mu.Unlock()
		}
		return pick, pick != bound, nil
	}

	n, err := p.selector.Best(ctx, node.FindOptions{Feature: feature})
	if err != nil {
		return nil, false, err
	}
	p.mu.Lock()
	p.node = n
	p.mu.Unlock()
	return n, n != bound, nil
}

// Skip stops the active track and plays the next queued one. Repeat modes do
// not bring a skipped track back.
func (p *Player) Skip(ctx context.Context, requester int64) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	cur := p.Current()
	if cur == nil {
		return model.ErrTrackNotFound
	}
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}

	if _, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{EncodedTrack: model.NullValue()}, false); err != nil {
		return err
	}
	p.history.Put(cur)
	p.mu.Lock()
	p.current = nil
	p.lastTrack = model.SnapshotTrack(cur)
	p.mu.Unlock()

	return p.playLocked(ctx, PlayOptions{Requester: requester}, true)
}

// Stop halts playback and clears the current track without advancing.
func (p *Player) Stop(ctx context.Context, requester int64) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	if _, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{EncodedTrack: model.NullValue()}, false); err != nil {
		return err
	}
	p.mu.Lock()
	if p.current != nil {
		p.lastTrack = model.SnapshotTrack(p.current)
	}
	p.current = nil
	p.state = StateIdle
	p.paused = false
	p.autoPaused = false
	p.mu.Unlock()
	return nil
}

// SetPause pauses or resumes playback. A user resume clears a system pause.
func (p *Player) SetPause(ctx context.Context, paused bool) error {
	return p.setPause(ctx, paused, false)
}

func (p *Player) setPause(ctx context.Context, paused, system bool) error {
	p.mu.RLock()
	same := p.paused == paused
	p.mu.RUnlock()
	if same {
		return nil
	}
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	if _, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{Paused: &paused}, false); err != nil {
		return err
	}

	p.mu.Lock()
	// Fold the extrapolated position in before the clock basis changes.
	if !paused {
		p.positionAt = time.Now()
	} else if !p.positionAt.IsZero() {
		elapsed := float64(time.Since(p.positionAt).Milliseconds())
		p.position += int64(elapsed * p.filters.Timescale.Multiplier())
	}
	p.paused = paused
	p.autoPaused = paused && system
	if p.current != nil {
		switch {
		case paused && system:
			p.state = StateAutoPaused
		case paused:
			p.state = StatePaused
		default:
			p.state = StatePlaying
		}
	}
	p.mu.Unlock()

	switch {
	case paused && system:
		p.bus.Dispatch(model.PlayerAutoPausedEvent{GuildID: p.guildID})
	case !paused && system:
		p.bus.Dispatch(model.PlayerAutoResumedEvent{GuildID: p.guildID})
	case paused:
		p.bus.Dispatch(model.PlayerPausedEvent{GuildID: p.guildID})
	default:
		p.bus.Dispatch(model.PlayerResumedEvent{GuildID: p.guildID})
	}
	return nil
}

// Seek moves playback to a position in milliseconds, clamped to the track
// bounds.
func (p *Player) Seek(ctx context.Context, position int64) error {
	cur := p.Current()
	if cur == nil {
		return model.ErrTrackNotFound
	}
	if !cur.IsSeekable() {
		return model.ErrNotSeekable
	}
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	if position < 0 {
		position = 0
	}
	if cur.Info != nil && position > cur.Info.Length {
		position = cur.Info.Length
	}
	if _, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{Position: &position}, false); err != nil {
		return err
	}
	p.mu.Lock()
	p.position = position
	p.positionAt = time.Now()
	p.mu.Unlock()
	return nil
}

// SetVolume sets playback volume, clamped to the configured ceiling.
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 {
		volume = 0
	}
	if max := p.cfg.MaxVolume; max > 0 && volume > max {
		volume = max
	}
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	if _, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{Volume: &volume}, false); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.bus.Dispatch(model.VolumeChangedEvent{GuildID: p.guildID, Volume: volume})
	return nil
}

// SetRepeat switches the repeat mode. The three modes are exclusive:
// enabling one clears the other.
func (p *Player) SetRepeat(mode RepeatMode) {
	p.mu.Lock()
	p.repeatCurrent = mode == RepeatCurrent
	p.repeatQueue = mode == RepeatQueue
	rc, rq := p.repeatCurrent, p.repeatQueue
	p.mu.Unlock()
	p.bus.Dispatch(model.RepeatChangedEvent{GuildID: p.guildID, RepeatCurrent: rc, RepeatQueue: rq})
}

// SetShuffle toggles shuffle. Enabling it reshuffles the queue immediately.
func (p *Player) SetShuffle(enabled bool) {
	p.mu.Lock()
	p.shuffle = enabled
	p.mu.Unlock()
	if enabled {
		p.queue.Shuffle()
	}
}

// SetAutoPlay configures the fallback playlist pulled from when the queue
// empties.
func (p *Player) SetAutoPlay(enabled bool, playlist []*model.Track) {
	p.mu.Lock()
	p.autoPlay = enabled
	p.autoPlaylist = playlist
	p.mu.Unlock()
}

// ApplyFilters updates the filter chain. With resetNotSet every filter the
// update does not mention reverts to default; otherwise unmentioned filters
// keep their value. Filters the bound node does not advertise are dropped
// from the wire payload but kept locally so a later node change can apply
// them.
func (p *Player) ApplyFilters(ctx context.Context, f *model.Filters, resetNotSet bool) error {
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	p.mu.Lock()
	merged := p.filters.Merge(f, resetNotSet)
	p.filters = *merged
	p.mu.Unlock()

	return p.pushFilters(ctx, n, merged)
}

func (p *Player) pushFilters(ctx context.Context, n Node, f *model.Filters) error {
	wire := f.Strip(n.SupportedFilters())
	if _, err := n.UpdatePlayer(ctx, p.guildID, &model.PlayerUpdate{Filters: wire}, false); err != nil {
		return err
	}
	p.bus.Dispatch(model.FiltersAppliedEvent{GuildID: p.guildID, Filters: f})
	return nil
}

// setFilter mutates one named filter, failing loudly when the bound node
// lacks it. Unlike the bulk path, an explicit single-filter request against
// an incapable node is a user-visible gap, not something to silently drop.
func (p *Player) setFilter(ctx context.Context, name string, mutate func(f *model.Filters)) error {
	n := p.Node()
	if n == nil {
		return model.ErrNotConnected
	}
	if !n.HasFilter(name) {
		return &model.FilterUnsupportedError{Filter: name, Node: n.Name()}
	}
	p.mu.Lock()
	mutate(&p.filters)
	f := p.filters
	p.mu.Unlock()
	return p.pushFilters(ctx, n, &f)
}

// SetEqualizer sets or clears the equalizer bands.
func (p *Player) SetEqualizer(ctx context.Context, bands []model.EQBand) error {
	return p.setFilter(ctx, model.FilterEqualizer, func(f *model.Filters) { f.Equalizer = bands })
}

// SetKaraoke sets or clears the karaoke filter.
func (p *Player) SetKaraoke(ctx context.Context, v *model.Karaoke) error {
	return p.setFilter(ctx, model.FilterKaraoke, func(f *model.Filters) { f.Karaoke = v })
}

// SetTimescale sets or clears the timescale filter.
func (p *Player) SetTimescale(ctx context.Context, v *model.Timescale) error {
	return p.setFilter(ctx, model.FilterTimescale, func(f *model.Filters) { f.Timescale = v })
}

// SetTremolo sets or clears the tremolo filter.
func (p *Player) SetTremolo(ctx context.Context, v *model.Tremolo) error {
	return p.setFilter(ctx, model.FilterTremolo, func(f *model.Filters) { f.Tremolo = v })
}

// SetVibrato sets or clears the vibrato filter.
func (p *Player) SetVibrato(ctx context.Context, v *model.Vibrato) error {
	return p.setFilter(ctx, model.FilterVibrato, func(f *model.Filters) { f.Vibrato = v })
}

// SetRotation sets or clears the rotation filter.
func (p *Player) SetRotation(ctx context.Context, v *model.Rotation) error {
	return p.setFilter(ctx, model.FilterRotation, func(f *model.Filters) { f.Rotation = v })
}

// SetDistortion sets or clears the distortion filter.
func (p *Player) SetDistortion(ctx context.Context, v *model.Distortion) error {
	return p.setFilter(ctx, model.FilterDistortion, func(f *model.Filters) { f.Distortion = v })
}

// SetLowPass sets or clears the low-pass filter.
func (p *Player) SetLowPass(ctx context.Context, v *model.LowPass) error {
	return p.setFilter(ctx, model.FilterLowPass, func(f *model.Filters) { f.LowPass = v })
}

// SetChannelMix sets or clears the channel-mix filter.
func (p *Player) SetChannelMix(ctx context.Context, v *model.ChannelMix) error {
	return p.setFilter(ctx, model.FilterChannelMix, func(f *model.Filters) { f.ChannelMix = v })
}

// SetEcho sets or clears the echo filter.
func (p *Player) SetEcho(ctx context.Context, v *model.Echo) error {
	return p.setFilter(ctx, model.FilterEcho, func(f *model.Filters) { f.Echo = v })
}

// ChangeNode migrates the session to a different node, carrying over the
// playing track at its estimated position, the filter chain, volume and the
// pause flag. With forced set the old node is assumed dead and not contacted.
func (p *Player) ChangeNode(ctx context.Context, target Node, forced bool) error {
	if target == nil {
		return model.ErrNoNodeAvailable
	}
	p.playMu.Lock()
	defer p.playMu.Unlock()

	old := p.Node()
	if target == old && !forced {
		return nil
	}

	position := p.Position()

	if old != nil && old != target && old.Available() && !forced {
		if err := old.DestroyPlayer(ctx, p.guildID); err != nil {
			logger.Warn("failed to destroy player on old node",
				logger.Int64("guild", p.guildID),
				logger.String("node", old.Name()),
				logger.ErrorField(err))
		}
	}

	// The new node must have a live transport and the voice triple must be
	// in hand before the resume update goes out.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !target.Available() || !p.Voice().Complete() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	p.mu.Lock()
	p.node = target
	voice := p.voice
	cur := p.current
	vol := p.volume
	paused := p.paused
	filters := p.filters
	p.mu.Unlock()

	update := &model.PlayerUpdate{
		Voice:  &voice,
		Volume: &vol,
		Paused: &paused,
	}
	if cur != nil {
		update.EncodedTrack = model.StringValue(cur.Encoded)
		update.Position = &position
	}
	if !filters.IsEmpty() {
		update.Filters = filters.Strip(target.SupportedFilters())
	}
	if _, err := target.UpdatePlayer(ctx, p.guildID, update, false); err != nil {
		return err
	}

	p.mu.Lock()
	p.position = position
	p.positionAt = time.Now()
	p.mu.Unlock()

	from := ""
	if old != nil {
		from = old.Name()
	}
	logger.Info("player moved to another node",
		logger.Int64("guild", p.guildID),
		logger.String("from", from),
		logger.String("to", target.Name()))
	p.bus.Dispatch(model.PlayerMovedEvent{GuildID: p.guildID, FromNode: from, ToNode: target.Name()})
	return nil
}

// ChangeToBestNode re-selects a node for the session, honoring the current
// track's capability needs. A no-op when the bound node is still the best
// choice and healthy.
func (p *Player) ChangeToBestNode(ctx context.Context, forced bool) error {
	feature := ""
	if cur := p.Current(); cur != nil {
		feature = cur.RequiresCapability()
	}
	n, err := p.selector.Best(ctx, node.FindOptions{Feature: feature})
	if err != nil {
		return err
	}
	if n == p.Node() && n.Available() && !forced {
		return nil
	}
	return p.ChangeNode(ctx, n, forced)
}

// handleTrackEnd advances playback after a node-reported track end. Only
// natural ends advance; stops and replaces belong to whichever call caused
// them.
func (p *Player) handleTrackEnd(ctx context.Context, ev model.TrackEndEvent) {
	p.mu.Lock()
	cur := p.current
	if cur != nil && ev.Track != nil && cur.Encoded == ev.Track.Encoded {
		cur.LastPosition = 0
	}
	repeatCurrent := p.repeatCurrent
	p.mu.Unlock()

	switch ev.Reason {
	case "finished", "loadFailed":
	default:
		return
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	if cur != nil && !repeatCurrent {
		p.history.Put(cur)
		p.mu.Lock()
		p.lastTrack = model.SnapshotTrack(cur)
		p.current = nil
		p.mu.Unlock()
	}
	if err := p.playLocked(ctx, PlayOptions{}, false); err != nil {
		logger.Warn("failed to advance after track end",
			logger.Int64("guild", p.guildID), logger.ErrorField(err))
	}
}

// onTick ingests a position update pushed by the bound node.
func (p *Player) onTick(tick model.PlayerTick) {
	p.mu.Lock()
	p.position = tick.Position
	p.positionAt = time.Now()
	p.wsConnected = tick.Connected
	p.ping = tick.Ping
	p.mu.Unlock()
}

// Disconnect tears the session down: saves state while a track is active,
// clears queue and history, releases the voice channel and deregisters from
// the controller. With maybeResuming the node-side player is left alive for
// a later resume.
func (p *Player) Disconnect(ctx context.Context, requester int64, maybeResuming bool) error {
	p.playMu.Lock()
	defer p.playMu.Unlock()

	if p.Current() != nil {
		if err := p.Save(ctx); err != nil {
			logger.Warn("failed to save player state on disconnect",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}

	p.closeOnce.Do(func() { close(p.done) })

	if n := p.Node(); n != nil && !maybeResuming {
		if err := n.DestroyPlayer(ctx, p.guildID); err != nil {
			logger.Warn("failed to destroy node-side player",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}
	if err := p.gateway.DisconnectVoice(ctx, p.guildID); err != nil {
		logger.Warn("failed to release voice channel",
			logger.Int64("guild", p.guildID), logger.ErrorField(err))
	}

	p.queue.Clear()
	p.history.Clear()

	p.mu.Lock()
	p.current = nil
	p.state = StateDisconnected
	p.channelID = 0
	p.voice = model.VoiceState{}
	p.paused = false
	p.autoPaused = false
	p.mu.Unlock()

	if p.onClose != nil {
		p.onClose(p.guildID)
	}
	p.bus.Dispatch(model.PlayerDisconnectedEvent{GuildID: p.guildID, Requester: requester})
	return nil
}

// Save persists a snapshot of the session. Failures are the caller's to log;
// saving is best-effort and never blocks playback.
func (p *Player) Save(ctx context.Context) error {
	if p.repo == nil {
		return nil
	}
	record := p.snapshot()
	return p.repo.Upsert(ctx, record)
}

func (p *Player) snapshot() *model.PlayerStateRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record := &model.PlayerStateRecord{
		GuildID:       p.guildID,
		BotID:         p.botID,
		ChannelID:     p.channelID,
		Volume:        p.volume,
		Position:      p.position,
		Paused:        p.paused,
		RepeatCurrent: p.repeatCurrent,
		RepeatQueue:   p.repeatQueue,
		Shuffle:       p.shuffle,
		AutoPlay:      p.autoPlay,
		SelfDeaf:      p.selfDeaf,
	}
	if p.current != nil {
		snap := model.SnapshotTrack(p.current)
		snap.Position = p.position
		record.Current = model.TrackSnapshotJSON{Snapshot: snap}
	}
	for _, t := range p.queue.Raw() {
		record.Queue = append(record.Queue, *model.SnapshotTrack(t))
	}
	for _, t := range p.history.Raw() {
		record.History = append(record.History, *model.SnapshotTrack(t))
	}
	if !p.filters.IsEmpty() {
		f := p.filters
		record.Filters = model.FiltersJSON{Filters: &f}
	}
	extras := model.StateExtras{
		LastTrack:      p.lastTrack,
		WasAlonePaused: p.autoPaused,
	}
	if qs := p.queue.Raw(); len(qs) > 0 {
		extras.NextTrack = model.SnapshotTrack(qs[0])
	}
	record.Extras = model.StateExtrasJSON{Extras: extras}
	return record
}

// hydrateSnapshot rebuilds a live track, decoding the handle locally when
// the persisted metadata is missing.
func hydrateSnapshot(s *model.TrackSnapshot) *model.Track {
	t := s.ToTrack()
	if t == nil {
		return nil
	}
	if t.Info == nil && t.Encoded != "" {
		info, err := codec.DecodeTrack(t.Encoded)
		if err != nil {
			logger.Warn("dropping undecodable persisted track", logger.ErrorField(err))
			return nil
		}
		t.Info = info.ToModel()
	}
	return t
}

// Restore rehydrates the session from a persisted record. Idempotent; only
// the first call mutates state. When the bound node still has a live player
// for the guild its state wins over the record, since the node may have kept
// playing through a client restart. The record is deleted afterwards so it
// cannot resurrect on a later start.
func (p *Player) Restore(ctx context.Context, record *model.PlayerStateRecord, requester int64) error {
	p.mu.Lock()
	if p.restored {
		p.mu.Unlock()
		return nil
	}
	p.restored = true
	p.mu.Unlock()

	current := hydrateSnapshot(record.Current.Snapshot)
	position := record.Position
	paused := record.Paused
	volume := record.Volume
	var filters *model.Filters
	if record.Filters.Filters != nil {
		filters = record.Filters.Filters
	}

	n := p.Node()
	nodeLive := false
	if n != nil {
		if live, err := n.GetPlayer(ctx, p.guildID); err == nil && live != nil && live.Track != nil {
			nodeLive = true
			current = live.Track
			position = live.State.Position
			paused = live.Paused
			volume = live.Volume
			if live.Filters != nil {
				filters = live.Filters
			}
		}
	}

	p.mu.Lock()
	p.current = current
	p.position = position
	p.positionAt = time.Now()
	p.paused = paused
	p.volume = volume
	p.repeatCurrent = record.RepeatCurrent
	p.repeatQueue = record.RepeatQueue
	p.shuffle = record.Shuffle
	p.autoPlay = record.AutoPlay
	p.selfDeaf = record.SelfDeaf
	p.autoPaused = record.Extras.Extras.WasAlonePaused && paused
	p.lastTrack = record.Extras.Extras.LastTrack
	if filters != nil {
		p.filters = *filters
	}
	switch {
	case current == nil:
		p.state = StateIdle
	case paused && p.autoPaused:
		p.state = StateAutoPaused
	case paused:
		p.state = StatePaused
	default:
		p.state = StatePlaying
	}
	p.mu.Unlock()

	for _, s := range record.Queue {
		snap := s
		if t := hydrateSnapshot(&snap); t != nil {
			p.queue.PutDiscard(t)
		}
	}
	// History snapshots are stored newest first; replay oldest first so the
	// ring rebuilds in the same order.
	for i := len(record.History) - 1; i >= 0; i-- {
		snap := record.History[i]
		if t := hydrateSnapshot(&snap); t != nil {
			p.history.Put(t)
		}
	}

	// Resume playback node-side when the record says we were playing and the
	// node lost the session.
	if !nodeLive && current != nil && n != nil {
		update := &model.PlayerUpdate{
			EncodedTrack: model.StringValue(current.Encoded),
			Position:     &position,
			Volume:       &volume,
			Paused:       &paused,
		}
		if voice := p.Voice(); voice.Complete() {
			update.Voice = &voice
		}
		if f := p.Filters(); !f.IsEmpty() {
			update.Filters = f.Strip(n.SupportedFilters())
		}
		if _, err := n.UpdatePlayer(ctx, p.guildID, update, false); err != nil {
			logger.Warn("failed to resume restored playback",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}

	if p.repo != nil {
		if err := p.repo.Delete(ctx, p.guildID, p.botID); err != nil {
			logger.Warn("failed to delete restored player record",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}

	p.bus.Dispatch(model.PlayerRestoredEvent{GuildID: p.guildID, Requester: requester})
	return nil
}

// sponsorblockNode is the optional segment-skipping surface a node may offer.
type sponsorblockNode interface {
	SponsorblockCategories(ctx context.Context, guildID int64) ([]string, error)
	SetSponsorblockCategories(ctx context.Context, guildID int64, categories []string) error
	DeleteSponsorblockCategories(ctx context.Context, guildID int64) error
}

func (p *Player) sponsorblock() (sponsorblockNode, error) {
	p.mu.RLock()
	n := p.node
	p.mu.RUnlock()
	if n == nil {
		return nil, model.ErrNoNodeAvailable
	}
	sb, ok := n.(sponsorblockNode)
	if !ok {
		return nil, &model.NoCapableNodeError{Feature: "sponsorblock"}
	}
	return sb, nil
}

// SponsorblockCategories returns the segment categories skipped for this
// session on the bound node.
func (p *Player) SponsorblockCategories(ctx context.Context) ([]string, error) {
	sb, err := p.sponsorblock()
	if err != nil {
		return nil, err
	}
	return sb.SponsorblockCategories(ctx, p.guildID)
}

// SetSponsorblockCategories replaces the skipped segment categories for this
// session on the bound node.
func (p *Player) SetSponsorblockCategories(ctx context.Context, categories []string) error {
	sb, err := p.sponsorblock()
	if err != nil {
		return err
	}
	return sb.SetSponsorblockCategories(ctx, p.guildID, categories)
}

// ClearSponsorblockCategories disables segment skipping for this session.
func (p *Player) ClearSponsorblockCategories(ctx context.Context) error {
	sb, err := p.sponsorblock()
	if err != nil {
		return err
	}
	return sb.DeleteSponsorblockCategories(ctx, p.guildID)
}
