package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PhantoomDev/reddit-content-generator/internal/core"
	"github.com/PhantoomDev/reddit-content-generator/internal/sink"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Order represents the chronological order to use when listing batches.
type Order string

const (
	// OrderDesc returns batches newest first.
	OrderDesc Order = "desc"
	// OrderAsc returns batches oldest first.
	OrderAsc Order = "asc"
)

// Filters captures the parsed query parameters for batch lookups.
type Filters struct {
	Window string
	Since  *time.Time
	Limit  int
	Order  Order
}

// ParseFilters parses query parameters into a Filters struct.
func ParseFilters(values url.Values) (Filters, error) {
	f := Filters{
		Limit: defaultLimit,
		Order: OrderDesc,
	}

	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Filters{}, errors.New("limit must be a positive integer")
		}
		if n > maxLimit {
			n = maxLimit
		}
		f.Limit = n
	}

	if raw := values.Get("order"); raw != "" {
		switch strings.ToLower(raw) {
		case "desc":
			f.Order = OrderDesc
		case "asc":
			f.Order = OrderAsc
		default:
			return Filters{}, errors.New("order must be asc or desc")
		}
	}

	if raw := values.Get("since"); raw != "" {
		parsed, err := parseSince(raw)
		if err != nil {
			return Filters{}, err
		}
		f.Since = &parsed
	}

	if raw := values.Get("window"); raw != "" {
		f.Window = normalizeWindow(raw)
	}

	return f, nil
}

// FiltersFromRequest parses filters from an HTTP request.
func FiltersFromRequest(r *http.Request) (Filters, error) {
	return ParseFilters(r.URL.Query())
}

// BatchFilters translates the parsed query into store filters.
func (f Filters) BatchFilters() sink.BatchFilters {
	return sink.BatchFilters{
		Window: f.Window,
		Since:  f.Since,
		Limit:  f.Limit,
		Asc:    f.Order == OrderAsc,
	}
}

// normalizeWindow expands the shorthand aliases for the stock windows.
// Window names are free-form configuration, so anything else passes through
// unchanged and simply matches no batch if no such window exists.
func normalizeWindow(raw string) string {
	trimmed := strings.TrimSpace(raw)
	switch strings.ToLower(trimmed) {
	case "day", "d":
		return "day"
	case "week", "w":
		return "week"
	case "month", "m":
		return "month"
	case "year", "y":
		return "year"
	case "all", "*":
		return ""
	default:
		return trimmed
	}
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return time.Now().Add(-d).UTC(), nil
	}
	return time.Time{}, errors.New("invalid since parameter")
}

// MatchesSegment reports whether a streamed segment satisfies the filters.
// Only the since bound applies to live segments; the window is a batch
// property and is unknown before sealing.
func (f Filters) MatchesSegment(seg core.Segment) bool {
	if f.Since != nil && seg.AssembledAt.Before(f.Since.UTC()) {
		return false
	}
	return true
}

// CloneForStream returns a copy of the filters adjusted for streaming transports.
func (f Filters) CloneForStream() Filters {
	f.Limit = 0
	return f
}
