package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// getPatronID extracts the authenticated patron id from the context.
// The value type depends on where the claim came from (float64 when
// parsed from JSON, int64/uint64 when set directly in tests).
func getPatronID(c echo.Context) (int64, error) {
	v := c.Get("patron_id")
	switch t := v.(type) {
	case int64:
		return t, nil
	case uint64:
		return int64(t), nil
	case int:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid patron_id in context")
}

// queryEventIDs collects event ids from the query string. Both the
// comma-separated form (?event_ids=a,b) and the repeated form
// (?event_id=a&event_id=b) are accepted.
func queryEventIDs(c echo.Context) []string {
	ids := append([]string(nil), c.QueryParams()["event_id"]...)
	for _, chunk := range strings.Split(c.QueryParam("event_ids"), ",") {
		if chunk = strings.TrimSpace(chunk); chunk != "" {
			ids = append(ids, chunk)
		}
	}
	return ids
}
