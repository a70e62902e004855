package httpapi

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
)

// stateResponse is the payload for GET /api/danmaku/v1/state: live counts
// across every subsystem, for dashboards and operator debugging.
type stateResponse struct {
	ViewersByChannel map[string]int `json:"viewers_by_channel"`
	UpstreamCount    int            `json:"upstream_count"`
	BlacklistPattern int            `json:"blacklist_patterns"`
	ForbiddenUsers   int            `json:"forbidden_users"`
	EmojiCacheSize   int            `json:"emoji_cache_entries"`
	EmojiCacheBytes  string         `json:"emoji_cache_size"`
	ConnectionsInUse int            `json:"connections_in_use"`
}

func (s *Server) handleState(c echo.Context) error {
	resp := stateResponse{
		ViewersByChannel: s.registry.ViewerCounts(),
		UpstreamCount:    s.registry.UpstreamCount(),
	}
	if s.blacklist != nil {
		patterns, users := s.blacklist.Counts()
		resp.BlacklistPattern = patterns
		resp.ForbiddenUsers = users
	}
	if s.emojiCache != nil {
		resp.EmojiCacheSize = s.emojiCache.Len()
		resp.EmojiCacheBytes = humanize.Bytes(uint64(s.emojiCache.Bytes()))
	}
	if s.limits != nil {
		resp.ConnectionsInUse = s.limits.Total()
	}
	if resp.ViewersByChannel == nil {
		resp.ViewersByChannel = map[string]int{}
	}
	return c.JSON(http.StatusOK, resp)
}
