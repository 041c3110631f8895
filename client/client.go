// Package client is the top-level facade: it wires configuration, storage,
// the node pool and the session controller into one handle an embedding bot
// drives.
package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"LinkFM/cache"
	"LinkFM/config"
	"LinkFM/db"
	"LinkFM/events"
	"LinkFM/logger"
	"LinkFM/model"
	"LinkFM/node"
	"LinkFM/player"
	"LinkFM/repository"
)

// managerSelector adapts the node manager to the player package's selection
// seam.
type managerSelector struct {
	m *node.Manager
}

func (s managerSelector) Best(ctx context.Context, opts node.FindOptions) (player.Node, error) {
	n, err := s.m.FindBestNode(ctx, opts)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// Client owns every long-lived component. Construct one per bot identity and
// pass it by handle; there are no package-level singletons.
type Client struct {
	cfg        *config.Config
	bus        *events.Bus
	manager    *node.Manager
	controller *player.Controller
	repo       repository.PlayerStateRepository
	gateway    player.VoiceGateway

	// InstanceID identifies this process in diagnostics output.
	InstanceID string

	stopWatch func()
}

// New builds a client: logging, redis, database, the node pool from the
// configured pool file, and the session controller. Nodes start connecting
// immediately; call WaitUntilReady before serving traffic.
func New(cfg *config.Config, gateway player.VoiceGateway) (*Client, error) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
	})

	if err := db.ConnectRedis(cfg); err != nil {
		// The query cache is an optimization; run without it.
		logger.Warn("redis unavailable, query caching disabled", logger.ErrorField(err))
		db.RedisClient = nil
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := db.AutoMigrateModels(&model.PlayerStateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	bus := events.NewBus()
	manager := node.NewManager(cfg.BotID, bus)
	repo := repository.NewGormPlayerStateRepository(db.GormDB)

	controller := player.NewController(player.ControllerOptions{
		Config:   cfg,
		Bus:      bus,
		Gateway:  gateway,
		Selector: managerSelector{m: manager},
		Repo:     repo,
	})
	manager.OnPlayerUpdate = controller.OnPlayerUpdate
	manager.OnNodeRemoved = controller.OnNodeRemoved

	nodes, err := config.LoadNodes(cfg.NodesFile)
	if err != nil {
		return nil, fmt.Errorf("node pool: %w", err)
	}
	manager.AddFromConfig(nodes)

	c := &Client{
		cfg:        cfg,
		bus:        bus,
		manager:    manager,
		controller: controller,
		repo:       repo,
		gateway:    gateway,
		InstanceID: uuid.NewString(),
	}

	stop, err := config.WatchNodes(cfg.NodesFile, manager.ApplyConfig)
	if err != nil {
		logger.Warn("node pool hot reload disabled", logger.ErrorField(err))
	} else {
		c.stopWatch = stop
	}

	manager.StartStatsPolling(context.Background())

	logger.Info("client initialized",
		logger.String("instance", c.InstanceID),
		logger.Int("nodes", len(nodes)))
	return c, nil
}

// Bus returns the domain event bus for subscriptions.
func (c *Client) Bus() *events.Bus { return c.bus }

// Manager returns the node pool manager.
func (c *Client) Manager() *node.Manager { return c.manager }

// Controller returns the session registry.
func (c *Client) Controller() *player.Controller { return c.controller }

// Config returns the active configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// WaitUntilReady blocks until the node pool is connected or ctx expires.
func (c *Client) WaitUntilReady(ctx context.Context) error {
	return c.manager.WaitUntilReady(ctx)
}

// Player returns the session for a guild, or nil.
func (c *Client) Player(guildID int64) *player.Player {
	return c.controller.Get(guildID)
}

// CreatePlayer returns or creates the session for a guild, bound to the
// given voice channel.
func (c *Client) CreatePlayer(ctx context.Context, guildID, channelID int64, selfDeaf bool) (*player.Player, error) {
	return c.controller.Create(ctx, guildID, channelID, selfDeaf)
}

// Resolve turns raw user input into tracks, consulting the redis cache
// before asking a node. Search-only nodes participate in selection.
func (c *Client) Resolve(ctx context.Context, raw string) (*model.LoadResult, error) {
	if cached := cache.GetQueryResult(ctx, raw); cached != nil {
		return cached, nil
	}

	q := ParseQuery(raw)
	n, err := c.manager.FindBestNode(ctx, node.FindOptions{
		Feature: q.RequiresCapability,
		Search:  true,
	})
	if err != nil {
		return nil, err
	}

	result, err := n.LoadTracks(ctx, Identifier(q))
	if err != nil {
		return nil, err
	}
	for _, t := range result.Tracks {
		t.Query = q
	}
	cache.PutQueryResult(ctx, raw, result, c.cfg.QueryTTL)
	return result, nil
}

// RestoreAll rehydrates persisted sessions after startup.
func (c *Client) RestoreAll(ctx context.Context) error {
	return c.controller.RestoreAll(ctx, c.manager, 0)
}

// SaveAll snapshots every active session, intended to run before shutdown.
func (c *Client) SaveAll(ctx context.Context) {
	c.controller.SaveAll(ctx)
}

// Shutdown stops everything in dependency order. With resuming set, node and
// session state is left alive remotely so a restarted process can pick the
// players back up.
func (c *Client) Shutdown(ctx context.Context, resuming bool) {
	if c.stopWatch != nil {
		c.stopWatch()
	}
	c.controller.SaveAll(ctx)
	c.controller.Shutdown(ctx, resuming)
	c.manager.Shutdown(resuming)
	c.bus.Close()
	if err := db.CloseRedis(); err != nil {
		logger.Warn("redis close failed", logger.ErrorField(err))
	}
	if err := db.CloseGormDB(); err != nil {
		logger.Warn("database close failed", logger.ErrorField(err))
	}
	logger.Info("client shut down", logger.String("instance", c.InstanceID))
}
