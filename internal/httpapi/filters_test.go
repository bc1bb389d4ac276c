package httpapi

import (
	"net/url"
	"testing"
	"time"
)

func TestParseFiltersDefaults(t *testing.T) {
	f, err := ParseFilters(url.Values{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != defaultLimit || f.Order != OrderDesc || f.Window != "" || f.Since != nil {
		t.Fatalf("unexpected defaults: %+v", f)
	}
}

func TestParseFiltersLimitAndOrder(t *testing.T) {
	f, err := ParseFilters(url.Values{"limit": {"10"}, "order": {"asc"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != 10 || f.Order != OrderAsc {
		t.Fatalf("unexpected filters: %+v", f)
	}

	f, err = ParseFilters(url.Values{"limit": {"99999"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Limit != maxLimit {
		t.Fatalf("limit should cap at %d, got %d", maxLimit, f.Limit)
	}

	if _, err := ParseFilters(url.Values{"limit": {"-3"}}); err == nil {
		t.Fatalf("negative limit must be rejected")
	}
	if _, err := ParseFilters(url.Values{"order": {"sideways"}}); err == nil {
		t.Fatalf("bad order must be rejected")
	}
}

func TestParseFiltersWindow(t *testing.T) {
	cases := map[string]string{
		"week": "week",
		"W":    "week",
		"d":    "day",
		"all":  "",
		// Window names come from configuration, so custom ones pass through.
		"evergreen": "evergreen",
	}
	for raw, want := range cases {
		f, err := ParseFilters(url.Values{"window": {raw}})
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if f.Window != want {
			t.Fatalf("window %q = %q, want %q", raw, f.Window, want)
		}
	}
}

func TestParseFiltersSince(t *testing.T) {
	f, err := ParseFilters(url.Values{"since": {"2025-03-30T12:00:00Z"}})
	if err != nil {
		t.Fatalf("parse rfc3339: %v", err)
	}
	want := time.Date(2025, 3, 30, 12, 0, 0, 0, time.UTC)
	if f.Since == nil || !f.Since.Equal(want) {
		t.Fatalf("since = %v, want %v", f.Since, want)
	}

	f, err = ParseFilters(url.Values{"since": {"1743336000"}})
	if err != nil {
		t.Fatalf("parse unix: %v", err)
	}
	if f.Since == nil || f.Since.Unix() != 1743336000 {
		t.Fatalf("unix since = %v", f.Since)
	}

	if _, err := ParseFilters(url.Values{"since": {"yesterday-ish"}}); err == nil {
		t.Fatalf("garbage since must be rejected")
	}
}

func TestBatchFiltersTranslation(t *testing.T) {
	f, err := ParseFilters(url.Values{"window": {"month"}, "limit": {"5"}, "order": {"asc"}})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	bf := f.BatchFilters()
	if bf.Window != "month" || bf.Limit != 5 || !bf.Asc {
		t.Fatalf("unexpected translation: %+v", bf)
	}
}
