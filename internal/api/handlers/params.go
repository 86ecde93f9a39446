package handlers

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	errInvalidID   = errors.New("invalid ID")
	errInvalidTime = errors.New("invalid time: use RFC3339 or a duration such as 24h")
)

func parseID(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, errInvalidID
	}
	return uint(id), nil
}

// parseTime reads an RFC3339 timestamp or a duration relative to now from
// the named query parameter. An absent parameter yields def.
func parseTime(c *gin.Context, name string, now, def time.Time) (time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d).UTC(), nil
	}
	return time.Time{}, errInvalidTime
}

// parseInt reads an integer query parameter. An absent parameter yields def.
func parseInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + name)
	}
	return v, nil
}

func validIP(s string) bool {
	return net.ParseIP(s) != nil
}
