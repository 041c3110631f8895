package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"LinkFM/logger"
	"LinkFM/model"

	"github.com/gorilla/websocket"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsBackoffMax       = 60 * time.Second
	resumeTimeout      = 60 * time.Second
)

// socket maintains one node's websocket: connect, read, reconnect with
// backoff until the node is closed.
type socket struct {
	node *Node

	mu   sync.Mutex
	conn *websocket.Conn
}

func newSocket(n *Node) *socket {
	return &socket{node: n}
}

// run drives the connect/read/reconnect cycle. Exits when the node closes.
func (s *socket) run() {
	backoff := time.Second
	wasConnected := false

	for {
		select {
		case <-s.node.closed:
			return
		default:
		}

		if err := s.connectOnce(); err != nil {
			logger.Warn("node websocket connect failed",
				logger.String("node", s.node.Name()),
				logger.Duration("retryIn", backoff),
				logger.ErrorField(err))

			select {
			case <-s.node.closed:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > wsBackoffMax {
				backoff = wsBackoffMax
			}
			continue
		}

		backoff = time.Second
		wasConnected = true

		s.readLoop()

		s.node.setAvailable(false)
		if wasConnected {
			s.node.bus.Dispatch(model.NodeDisconnectedEvent{Node: s.node.Name()})
		}

		select {
		case <-s.node.closed:
			return
		case <-time.After(time.Second):
		}
	}
}

func (s *socket) connectOnce() error {
	scheme := "ws"
	if s.node.opts.SSL {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, s.node.opts.Host, s.node.opts.Port)

	headers := http.Header{}
	headers.Set("Authorization", s.node.opts.Password)
	headers.Set("User-Id", strconv.FormatInt(s.node.opts.BotID, 10))
	headers.Set("Client-Name", "LinkFM/1.0")
	if prev := s.node.SessionID(); prev != "" {
		headers.Set("Session-Id", prev)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	conn, _, err := dialer.Dial(url, headers)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

func (s *socket) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

func (s *socket) readLoop() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			logger.Warn("node websocket read failed",
				logger.String("node", s.node.Name()), logger.ErrorField(err))
			s.close()
			return
		}

		var envelope struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}
		s.handleMessage(envelope.Op, message)
	}
}

func (s *socket) handleMessage(op string, message []byte) {
	n := s.node
	switch op {
	case "ready":
		var payload struct {
			Resumed   bool   `json:"resumed"`
			SessionID string `json:"sessionId"`
		}
		if err := json.Unmarshal(message, &payload); err != nil {
			return
		}
		n.setSession(payload.SessionID, payload.Resumed)
		logger.Info("node ready",
			logger.String("node", n.Name()),
			logger.String("sessionId", payload.SessionID),
			logger.Bool("resumed", payload.Resumed))

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.refreshInfo(ctx); err != nil {
				logger.Warn("failed to fetch node capabilities",
					logger.String("node", n.Name()), logger.ErrorField(err))
			}
			if err := n.ConfigureResuming(ctx, resumeTimeout); err != nil {
				logger.Warn("failed to configure session resuming",
					logger.String("node", n.Name()), logger.ErrorField(err))
			}
		}()

		n.bus.Dispatch(model.NodeConnectedEvent{
			Node:      n.Name(),
			SessionID: payload.SessionID,
			Resumed:   payload.Resumed,
		})

	case "stats":
		var stats model.NodeStats
		if err := json.Unmarshal(message, &stats); err != nil {
			return
		}
		n.setStats(stats)
		n.bus.Dispatch(model.NodeStatsEvent{Node: n.Name(), Stats: stats})

	case "playerUpdate":
		var payload struct {
			GuildID string           `json:"guildId"`
			State   model.PlayerTick `json:"state"`
		}
		if err := json.Unmarshal(message, &payload); err != nil {
			return
		}
		guildID, err := strconv.ParseInt(payload.GuildID, 10, 64)
		if err != nil {
			return
		}
		if n.onPlayerUpdate != nil {
			n.onPlayerUpdate(guildID, payload.State)
		}

	case "event":
		s.handleEvent(message)
	}
}

// handleEvent translates a node event payload into the matching domain event
// variant. Node exceptions become tagged events with an error kind instead of
// Go errors.
func (s *socket) handleEvent(message []byte) {
	n := s.node
	var payload struct {
		Type    string       `json:"type"`
		GuildID string       `json:"guildId"`
		Track   *model.Track `json:"track,omitempty"`
		Reason  string       `json:"reason,omitempty"`
		Exception *struct {
			Message  string `json:"message"`
			Severity string `json:"severity"`
			Cause    string `json:"cause"`
		} `json:"exception,omitempty"`
		ThresholdMs int64 `json:"thresholdMs,omitempty"`
		Code        int   `json:"code,omitempty"`
		ByRemote    bool  `json:"byRemote,omitempty"`
	}
	if err := json.Unmarshal(message, &payload); err != nil {
		return
	}
	guildID, err := strconv.ParseInt(payload.GuildID, 10, 64)
	if err != nil {
		return
	}

	switch payload.Type {
	case "TrackStartEvent":
		n.bus.Dispatch(model.TrackStartEvent{
			GuildID: guildID,
			Track:   payload.Track,
			Node:    n.Name(),
		})
	case "TrackEndEvent":
		n.bus.Dispatch(model.TrackEndEvent{
			GuildID: guildID,
			Track:   payload.Track,
			Reason:  payload.Reason,
			Node:    n.Name(),
		})
	case "TrackExceptionEvent":
		ev := model.TrackExceptionEvent{
			GuildID: guildID,
			Track:   payload.Track,
			Kind:    model.ErrorKindCommon,
			Node:    n.Name(),
		}
		if payload.Exception != nil {
			ev.Message = payload.Exception.Message
			ev.Cause = payload.Exception.Cause
			switch payload.Exception.Severity {
			case "suspicious":
				ev.Kind = model.ErrorKindSuspicious
			case "fault":
				ev.Kind = model.ErrorKindFault
			}
		}
		n.bus.Dispatch(ev)
	case "TrackStuckEvent":
		n.bus.Dispatch(model.TrackStuckEvent{
			GuildID:     guildID,
			Track:       payload.Track,
			ThresholdMs: payload.ThresholdMs,
			Node:        n.Name(),
		})
	case "WebSocketClosedEvent":
		n.bus.Dispatch(model.WebSocketClosedEvent{
			GuildID:  guildID,
			Code:     payload.Code,
			Reason:   payload.Reason,
			ByRemote: payload.ByRemote,
		})
	}
}
