package client

import (
	"net/url"
	"path"
	"strings"

	"LinkFM/model"
)

// search prefixes accepted from user input and the node identifier they map
// to.
var searchPrefixes = map[string]string{
	"ytsearch:": "youtube",
	"ytmsearch:": "youtubemusic",
	"scsearch:": "soundcloud",
	"spsearch:": "spotify",
	"dzsearch:": "deezer",
	"amsearch:": "applemusic",
}

var hostCapabilities = map[string]string{
	"youtube.com":       "youtube",
	"www.youtube.com":   "youtube",
	"music.youtube.com": "youtube",
	"youtu.be":          "youtube",
	"soundcloud.com":    "soundcloud",
	"open.spotify.com":  "spotify",
	"music.apple.com":   "applemusic",
	"deezer.com":        "deezer",
	"www.deezer.com":    "deezer",
	"music.yandex.ru":   "yandexmusic",
	"bandcamp.com":      "bandcamp",
	"twitch.tv":         "twitch",
	"www.twitch.tv":     "twitch",
}

// ParseQuery classifies raw user input: an explicit search, a direct URL, a
// local path, or a plain-text search (defaulting to a youtube search). The
// result carries the capability tag used for node selection.
func ParseQuery(raw string) *model.Query {
	raw = strings.TrimSpace(raw)
	q := &model.Query{Raw: raw}

	for prefix, capability := range searchPrefixes {
		if strings.HasPrefix(raw, prefix) {
			q.IsSearch = true
			q.Source = capability
			q.RequiresCapability = capability
			return q
		}
	}

	if u, err := url.Parse(raw); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		q.IsHTTP = true
		ext := strings.ToLower(path.Ext(u.Path))
		switch ext {
		case ".m3u", ".m3u8":
			q.IsM3U = true
		case ".pls":
			q.IsPLS = true
		}
		if capability, ok := hostCapabilities[strings.ToLower(u.Host)]; ok {
			q.Source = capability
			q.RequiresCapability = capability
			q.IsHTTP = false
			values := u.Query()
			switch {
			case values.Get("list") != "" || strings.Contains(u.Path, "/playlist"):
				q.IsPlaylist = true
			case strings.Contains(u.Path, "/album"):
				q.IsAlbum = true
			default:
				q.IsSingle = true
			}
			return q
		}
		q.Source = "http"
		q.RequiresCapability = "http"
		q.IsSingle = !q.IsM3U && !q.IsPLS
		return q
	}

	if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "file://") {
		q.IsLocal = true
		q.IsSingle = true
		q.Source = "local"
		q.RequiresCapability = "local"
		return q
	}

	q.IsSearch = true
	q.Source = "youtube"
	q.RequiresCapability = "youtube"
	return q
}

// Identifier is the string handed to a node's load endpoint for this query.
func Identifier(q *model.Query) string {
	if q.IsSearch {
		for prefix := range searchPrefixes {
			if strings.HasPrefix(q.Raw, prefix) {
				return q.Raw
			}
		}
		return "ytsearch:" + q.Raw
	}
	return q.Raw
}
