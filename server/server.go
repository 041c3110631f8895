// Package server exposes a read-only diagnostics HTTP surface: node pool
// health and active player listings.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"LinkFM/client"
	"LinkFM/logger"
	"LinkFM/player"
)

// Server is the diagnostics HTTP listener.
type Server struct {
	client *client.Client
	http   *http.Server
}

// New builds the diagnostics server on the given listen address.
func New(c *client.Client, addr string) *Server {
	s := &Server{client: c}

	router := mux.NewRouter()
	router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/nodes", s.handleNodes).Methods(http.MethodGet)
	router.HandleFunc("/api/players", s.handlePlayers).Methods(http.MethodGet)
	router.HandleFunc("/api/players/{guildID}", s.handlePlayer).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		logger.Info("diagnostics server listening", logger.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("diagnostics server failed", logger.ErrorField(err))
		}
	}()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("failed to write response", logger.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"instance":       s.client.InstanceID,
		"availableNodes": s.client.Manager().AvailableCount(),
		"players":        len(s.client.Controller().Players()),
	})
}

type nodeStatus struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Region    string  `json:"region,omitempty"`
	Available bool    `json:"available"`
	SessionID string  `json:"sessionId,omitempty"`
	Penalty   float64 `json:"penalty"`
	Players   int     `json:"players"`
	Playing   int     `json:"playingPlayers"`
	UptimeMs  int64   `json:"uptimeMs"`
	StatsAge  string  `json:"statsAge,omitempty"`
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.client.Manager().Nodes()
	out := make([]nodeStatus, 0, len(nodes))
	for _, n := range nodes {
		stats, at := n.Stats()
		status := nodeStatus{
			ID:        n.ID(),
			Name:      n.Name(),
			Region:    n.Region(),
			Available: n.Available(),
			SessionID: n.SessionID(),
			Penalty:   n.Penalty(),
			Players:   stats.Players,
			Playing:   stats.PlayingPlayers,
			UptimeMs:  stats.Uptime,
		}
		if !at.IsZero() {
			status.StatsAge = time.Since(at).Round(time.Second).String()
		}
		out = append(out, status)
	}
	respondWithJSON(w, http.StatusOK, out)
}

type playerStatus struct {
	GuildID    int64  `json:"guildId"`
	ChannelID  int64  `json:"channelId"`
	State      string `json:"state"`
	Node       string `json:"node,omitempty"`
	Track      string `json:"track,omitempty"`
	PositionMs int64  `json:"positionMs"`
	Volume     int    `json:"volume"`
	Paused     bool   `json:"paused"`
	QueueSize  int    `json:"queueSize"`
}

func statusOf(p *player.Player) playerStatus {
	status := playerStatus{
		GuildID:    p.GuildID(),
		ChannelID:  p.ChannelID(),
		State:      p.State().String(),
		PositionMs: p.Position(),
		Volume:     p.Volume(),
		Paused:     p.Paused(),
		QueueSize:  p.Queue().Size(),
	}
	if n := p.Node(); n != nil {
		status.Node = n.Name()
	}
	if t := p.Current(); t != nil {
		status.Track = t.Title()
	}
	return status
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players := s.client.Controller().Players()
	out := make([]playerStatus, 0, len(players))
	for _, p := range players {
		out = append(out, statusOf(p))
	}
	respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	guildID, err := strconv.ParseInt(mux.Vars(r)["guildID"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid guild id")
		return
	}
	p := s.client.Player(guildID)
	if p == nil {
		respondWithError(w, http.StatusNotFound, "no player for guild")
		return
	}
	respondWithJSON(w, http.StatusOK, statusOf(p))
}
