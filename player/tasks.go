package player

import (
	"context"
	"time"

	"LinkFM/logger"
)

// runTasks drives the periodic auto behaviours: pause when alone, resume
// when company returns, disconnect after being alone or idle too long. The
// checks are level-triggered polls, so thresholds are only as precise as the
// poll interval. Each countdown start clears the instant its condition
// stops holding.
func (p *Player) runTasks() {
	interval := p.cfg.AutoTaskInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.tick(time.Now())
		}
	}
}

func (p *Player) tick(now time.Time) {
	p.mu.RLock()
	state := p.state
	channelID := p.channelID
	p.mu.RUnlock()
	if state == StateDisconnected || state == StateConnecting {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.checkAlone(ctx, now, channelID)
	p.checkEmptyQueue(ctx, now)
}

func (p *Player) checkAlone(ctx context.Context, now time.Time, channelID int64) {
	members, err := p.gateway.ChannelMembers(p.guildID, channelID)
	if err != nil {
		logger.Debug("member count failed",
			logger.Int64("guild", p.guildID), logger.ErrorField(err))
		return
	}

	if members > 0 {
		p.mu.Lock()
		p.aloneSince = time.Time{}
		wasAutoPaused := p.autoPaused
		p.mu.Unlock()
		if wasAutoPaused {
			if err := p.setPause(ctx, false, true); err != nil {
				logger.Warn("auto-resume failed",
					logger.Int64("guild", p.guildID), logger.ErrorField(err))
			}
		}
		return
	}

	p.mu.Lock()
	if p.aloneSince.IsZero() {
		p.aloneSince = now
	}
	alone := now.Sub(p.aloneSince)
	playing := p.state == StatePlaying
	p.mu.Unlock()

	if after := p.cfg.AloneDisconnectAfter; after > 0 && alone >= after {
		logger.Info("disconnecting player alone in channel",
			logger.Int64("guild", p.guildID), logger.Duration("alone", alone))
		if err := p.Disconnect(ctx, 0, false); err != nil {
			logger.Warn("alone-disconnect failed",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
		return
	}
	if after := p.cfg.AlonePauseAfter; after > 0 && alone >= after && playing {
		if err := p.setPause(ctx, true, true); err != nil {
			logger.Warn("auto-pause failed",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}
}

func (p *Player) checkEmptyQueue(ctx context.Context, now time.Time) {
	p.mu.Lock()
	idle := p.current == nil && p.queue.Empty()
	if !idle {
		p.emptySince = time.Time{}
		p.mu.Unlock()
		return
	}
	if p.emptySince.IsZero() {
		p.emptySince = now
	}
	empty := now.Sub(p.emptySince)
	p.mu.Unlock()

	if after := p.cfg.EmptyQueueDCAfter; after > 0 && empty >= after {
		logger.Info("disconnecting idle player",
			logger.Int64("guild", p.guildID), logger.Duration("idle", empty))
		if err := p.Disconnect(ctx, 0, false); err != nil {
			logger.Warn("empty-queue disconnect failed",
				logger.Int64("guild", p.guildID), logger.ErrorField(err))
		}
	}
}
