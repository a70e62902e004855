package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// handleEmojiFetch serves GET /api/emoji/:key: the cached entry's bytes
// with its stored content type, or 404 on a cache miss.
func (s *Server) handleEmojiFetch(c echo.Context) error {
	key := c.Param("key")
	entry, ok := s.emoji.Get(key)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "emoji not found")
	}
	return c.Blob(http.StatusOK, entry.ContentType, entry.Data)
}
