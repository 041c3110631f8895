package node

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"LinkFM/codec"
	"LinkFM/logger"
	"LinkFM/model"
)

// restClient talks to one node's HTTP API. All operations are idempotent-safe
// to retry except player updates carrying noReplace, which the node itself
// makes safe by skipping when something is already playing.
type restClient struct {
	base     string
	password string
	http     *http.Client
}

func newRestClient(opts Options, httpClient *http.Client) *restClient {
	scheme := "http"
	if opts.SSL {
		scheme = "https"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &restClient{
		base:     fmt.Sprintf("%s://%s:%d", scheme, opts.Host, opts.Port),
		password: opts.Password,
		http:     httpClient,
	}
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("node returned %d for %s %s: %s", resp.StatusCode, method, path, string(data))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// nodeInfo is the capability advertisement at /v4/info.
type nodeInfo struct {
	Version struct {
		Semver string `json:"semver"`
	} `json:"version"`
	SourceManagers []string `json:"sourceManagers"`
	Filters        []string `json:"filters"`
	Plugins        []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"plugins"`
}

func (c *restClient) info(ctx context.Context) (*nodeInfo, error) {
	var out nodeInfo
	if err := c.do(ctx, http.MethodGet, "/v4/info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *restClient) stats(ctx context.Context) (*model.NodeStats, error) {
	var out model.NodeStats
	if err := c.do(ctx, http.MethodGet, "/v4/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchStats polls the node health endpoint and stores the snapshot.
func (n *Node) FetchStats(ctx context.Context) (*model.NodeStats, error) {
	stats, err := n.rest.stats(ctx)
	if err != nil {
		return nil, err
	}
	n.setStats(*stats)
	return stats, nil
}

// loadResultWire is the polymorphic /v4/loadtracks response.
type loadResultWire struct {
	LoadType model.LoadType  `json:"loadType"`
	Data     json.RawMessage `json:"data"`
}

// LoadTracks resolves an identifier or search expression on this node.
func (n *Node) LoadTracks(ctx context.Context, identifier string) (*model.LoadResult, error) {
	var wire loadResultWire
	path := "/v4/loadtracks?identifier=" + url.QueryEscape(identifier)
	if err := n.rest.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	result := &model.LoadResult{LoadType: wire.LoadType}
	switch wire.LoadType {
	case model.LoadTypeTrack:
		var t model.Track
		if err := json.Unmarshal(wire.Data, &t); err != nil {
			return nil, fmt.Errorf("failed to parse track payload: %w", err)
		}
		result.Tracks = []*model.Track{&t}
	case model.LoadTypePlaylist:
		var pl struct {
			Info   model.PlaylistInfo `json:"info"`
			Tracks []*model.Track     `json:"tracks"`
		}
		if err := json.Unmarshal(wire.Data, &pl); err != nil {
			return nil, fmt.Errorf("failed to parse playlist payload: %w", err)
		}
		result.PlaylistInfo = &pl.Info
		result.Tracks = pl.Tracks
	case model.LoadTypeSearch:
		if err := json.Unmarshal(wire.Data, &result.Tracks); err != nil {
			return nil, fmt.Errorf("failed to parse search payload: %w", err)
		}
	case model.LoadTypeError:
		var ex model.LoadException
		if err := json.Unmarshal(wire.Data, &ex); err != nil {
			return nil, fmt.Errorf("failed to parse load exception: %w", err)
		}
		result.Exception = &ex
	}
	return result, nil
}

// DecodeTrack asks the node for the full metadata of an encoded handle,
// falling back to the local codec when the node call fails. The fallback
// covers every display field, so it also works with no node reachable.
func (n *Node) DecodeTrack(ctx context.Context, encoded string) (*model.Track, error) {
	var t model.Track
	path := "/v4/decodetrack?encodedTrack=" + url.QueryEscape(encoded)
	if err := n.rest.do(ctx, http.MethodGet, path, nil, &t); err != nil {
		info, derr := codec.DecodeTrack(encoded)
		if derr != nil {
			return nil, derr
		}
		return &model.Track{Encoded: encoded, Info: info.ToModel()}, nil
	}
	if t.Encoded == "" {
		t.Encoded = encoded
	}
	return &t, nil
}

// DecodeTracks batch-decodes handles. Degrades per item: when the batch call
// fails, each handle is decoded locally and malformed ones are skipped
// instead of failing the lot.
func (n *Node) DecodeTracks(ctx context.Context, encoded []string) ([]*model.Track, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	var out []*model.Track
	if err := n.rest.do(ctx, http.MethodPost, "/v4/decodetracks", encoded, &out); err == nil {
		return out, nil
	}

	out = make([]*model.Track, 0, len(encoded))
	for _, e := range encoded {
		info, derr := codec.DecodeTrack(e)
		if derr != nil {
			logger.Warn("skipping undecodable track in batch",
				logger.String("node", n.Name()), logger.ErrorField(derr))
			continue
		}
		out = append(out, &model.Track{Encoded: e, Info: info.ToModel()})
	}
	return out, nil
}

// UpdatePlayer patches the node-side player for a guild. With noReplace the
// node skips the update when a track is already playing.
func (n *Node) UpdatePlayer(ctx context.Context, guildID int64, update *model.PlayerUpdate, noReplace bool) (*model.RestPlayer, error) {
	session, err := n.requireSession()
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%d?noReplace=%t", session, guildID, noReplace)
	var out model.RestPlayer
	if err := n.rest.do(ctx, http.MethodPatch, path, update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPlayer fetches the node's live view of a guild player.
func (n *Node) GetPlayer(ctx context.Context, guildID int64) (*model.RestPlayer, error) {
	session, err := n.requireSession()
	if err != nil {
		return nil, err
	}
	var out model.RestPlayer
	path := fmt.Sprintf("/v4/sessions/%s/players/%d", session, guildID)
	if err := n.rest.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DestroyPlayer deletes the node-side player for a guild.
func (n *Node) DestroyPlayer(ctx context.Context, guildID int64) error {
	session, err := n.requireSession()
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%d", session, guildID)
	return n.rest.do(ctx, http.MethodDelete, path, nil, nil)
}

// ConfigureResuming asks the node to keep players alive for the given window
// after our socket drops.
func (n *Node) ConfigureResuming(ctx context.Context, timeout time.Duration) error {
	session, err := n.requireSession()
	if err != nil {
		return err
	}
	body := map[string]any{
		"resuming": true,
		"timeout":  int(timeout.Seconds()),
	}
	return n.rest.do(ctx, http.MethodPatch, "/v4/sessions/"+session, body, nil)
}

// RoutePlannerStatus fetches route planner diagnostics.
func (n *Node) RoutePlannerStatus(ctx context.Context) (*model.RoutePlannerStatus, error) {
	var out model.RoutePlannerStatus
	if err := n.rest.do(ctx, http.MethodGet, "/v4/routeplanner/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RoutePlannerFreeAddress unmarks one banned address.
func (n *Node) RoutePlannerFreeAddress(ctx context.Context, address string) error {
	body := map[string]string{"address": address}
	return n.rest.do(ctx, http.MethodPost, "/v4/routeplanner/free/address", body, nil)
}

// RoutePlannerFreeAll unmarks every banned address.
func (n *Node) RoutePlannerFreeAll(ctx context.Context) error {
	return n.rest.do(ctx, http.MethodPost, "/v4/routeplanner/free/all", nil, nil)
}

// SponsorblockCategories fetches the skip categories for a guild player.
func (n *Node) SponsorblockCategories(ctx context.Context, guildID int64) ([]string, error) {
	session, err := n.requireSession()
	if err != nil {
		return nil, err
	}
	var out []string
	path := fmt.Sprintf("/v4/sessions/%s/players/%d/sponsorblock/categories", session, guildID)
	if err := n.rest.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetSponsorblockCategories replaces the skip categories for a guild player.
func (n *Node) SetSponsorblockCategories(ctx context.Context, guildID int64, categories []string) error {
	session, err := n.requireSession()
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%d/sponsorblock/categories", session, guildID)
	return n.rest.do(ctx, http.MethodPut, path, categories, nil)
}

// DeleteSponsorblockCategories clears the skip categories for a guild player.
func (n *Node) DeleteSponsorblockCategories(ctx context.Context, guildID int64) error {
	session, err := n.requireSession()
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/v4/sessions/%s/players/%d/sponsorblock/categories", session, guildID)
	return n.rest.do(ctx, http.MethodDelete, path, nil, nil)
}

// ProbeResult is a one-shot health snapshot of a configured node, taken
// without registering it in a pool or opening a websocket.
type ProbeResult struct {
	Version string
	Sources []string
	Stats   *model.NodeStats
}

// Probe fetches /v4/info and /v4/stats from a node described by opts.
func Probe(ctx context.Context, opts Options) (*ProbeResult, error) {
	rc := newRestClient(opts, &http.Client{Timeout: 10 * time.Second})
	info, err := rc.info(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := rc.stats(ctx)
	if err != nil {
		return nil, err
	}
	return &ProbeResult{
		Version: info.Version.Semver,
		Sources: info.SourceManagers,
		Stats:   stats,
	}, nil
}
