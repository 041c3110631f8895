package player

import (
	"context"
	"sync"
	"time"

	"LinkFM/config"
	"LinkFM/events"
	"LinkFM/logger"
	"LinkFM/model"
	"LinkFM/node"
	"LinkFM/repository"
)

// Controller is the registry of sessions, keyed by guild. It owns session
// lifecycle and routes node events into the right session.
type Controller struct {
	mu      sync.RWMutex
	players map[int64]*Player

	cfg      *config.Config
	bus      *events.Bus
	gateway  VoiceGateway
	selector Selector
	repo     repository.PlayerStateRepository
	botID    int64

	unsubscribe func()
}

// ControllerOptions wires a controller's collaborators.
type ControllerOptions struct {
	Config   *config.Config
	Bus      *events.Bus
	Gateway  VoiceGateway
	Selector Selector
	Repo     repository.PlayerStateRepository
}

// NewController creates the registry and subscribes it to track-end events
// so every session advances its queue.
func NewController(opts ControllerOptions) *Controller {
	c := &Controller{
		players:  make(map[int64]*Player),
		cfg:      opts.Config,
		bus:      opts.Bus,
		gateway:  opts.Gateway,
		selector: opts.Selector,
		repo:     opts.Repo,
		botID:    opts.Config.BotID,
	}
	c.unsubscribe = opts.Bus.SubscribeType(model.EventTrackEnd, func(e model.Event) {
		ev, ok := e.(model.TrackEndEvent)
		if !ok {
			return
		}
		if p := c.Get(ev.GuildID); p != nil {
			p.handleTrackEnd(context.Background(), ev)
		}
	})
	return c
}

// Create returns the guild's session, creating one when none exists. An
// existing session bound to a different channel is moved rather than
// replaced; sessions are never double-created.
func (c *Controller) Create(ctx context.Context, guildID, channelID int64, selfDeaf bool) (*Player, error) {
	c.mu.Lock()
	p, ok := c.players[guildID]
	if !ok {
		p = NewPlayer(Options{
			GuildID:  guildID,
			BotID:    c.botID,
			Config:   c.cfg,
			Bus:      c.bus,
			Gateway:  c.gateway,
			Selector: c.selector,
			Repo:     c.repo,
			OnClose:  c.remove,
		})
		c.players[guildID] = p
	}
	c.mu.Unlock()

	if channelID != 0 && p.ChannelID() != channelID {
		if err := p.Connect(ctx, channelID, selfDeaf); err != nil {
			if !ok {
				c.remove(guildID)
			}
			return nil, err
		}
	}
	return p, nil
}

// Get returns the guild's session, or nil.
func (c *Controller) Get(guildID int64) *Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.players[guildID]
}

// Players returns a snapshot of all sessions.
func (c *Controller) Players() []*Player {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Player, 0, len(c.players))
	for _, p := range c.players {
		out = append(out, p)
	}
	return out
}

func (c *Controller) remove(guildID int64) {
	c.mu.Lock()
	delete(c.players, guildID)
	c.mu.Unlock()
}

// OnPlayerUpdate routes a node position tick into its session. Wired to the
// node manager's update hook.
func (c *Controller) OnPlayerUpdate(guildID int64, tick model.PlayerTick) {
	if p := c.Get(guildID); p != nil {
		p.onTick(tick)
	}
}

// OnNodeRemoved migrates every session bound to a departing node. Wired to
// the node manager's removal hook.
func (c *Controller) OnNodeRemoved(removed *node.Node) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, p := range c.Players() {
		if p.Node() != Node(removed) {
			continue
		}
		if err := p.ChangeToBestNode(ctx, true); err != nil {
			logger.Warn("failed to migrate player off removed node",
				logger.Int64("guild", p.GuildID()),
				logger.String("node", removed.Name()),
				logger.ErrorField(err))
		}
	}
}

// RestoreAll rehydrates every persisted session. It waits for the node pool
// first and proceeds when at least one node came up. Records whose channel
// vanished or that hold no current track are stale and deleted instead of
// restored. Guilds restore concurrently; one failure never blocks the rest.
func (c *Controller) RestoreAll(ctx context.Context, mgr *node.Manager, requester int64) error {
	if c.repo == nil {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ReadyWait)
	err := mgr.WaitUntilReady(waitCtx)
	cancel()
	if err != nil && mgr.AvailableCount() == 0 {
		return model.ErrNoNodeAvailable
	}

	records, err := c.repo.All(ctx, c.botID)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, record := range records {
		record := record
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.restoreOne(ctx, record, requester)
		}()
	}
	wg.Wait()
	return nil
}

func (c *Controller) restoreOne(ctx context.Context, record *model.PlayerStateRecord, requester int64) {
	stale := record.Current.Snapshot == nil ||
		!c.gateway.ChannelExists(record.GuildID, record.ChannelID)
	if stale {
		if err := c.repo.Delete(ctx, record.GuildID, record.BotID); err != nil {
			logger.Warn("failed to delete stale player record",
				logger.Int64("guild", record.GuildID), logger.ErrorField(err))
		}
		return
	}

	p, err := c.Create(ctx, record.GuildID, record.ChannelID, record.SelfDeaf)
	if err != nil {
		logger.Warn("failed to reconnect restored player",
			logger.Int64("guild", record.GuildID), logger.ErrorField(err))
		return
	}
	if err := p.Restore(ctx, record, requester); err != nil {
		logger.Warn("failed to restore player state",
			logger.Int64("guild", record.GuildID), logger.ErrorField(err))
	}
}

// SaveAll persists every session that currently has a track. Meant to run
// right before shutdown; failures are logged per guild and skipped.
func (c *Controller) SaveAll(ctx context.Context) {
	for _, p := range c.Players() {
		if p.Current() == nil {
			continue
		}
		if err := p.Save(ctx); err != nil {
			logger.Warn("failed to save player state",
				logger.Int64("guild", p.GuildID()), logger.ErrorField(err))
		}
	}
}

// Shutdown disconnects every session concurrently, tolerating per-session
// failures. With maybeResuming set the node-side players stay alive.
func (c *Controller) Shutdown(ctx context.Context, maybeResuming bool) {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	var wg sync.WaitGroup
	for _, p := range c.Players() {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Disconnect(ctx, 0, maybeResuming); err != nil {
				logger.Warn("failed to disconnect player during shutdown",
					logger.Int64("guild", p.GuildID()), logger.ErrorField(err))
			}
		}()
	}
	wg.Wait()
}
