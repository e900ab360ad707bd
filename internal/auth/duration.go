package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeExpiry = regexp.MustCompile(`^(\d+)([hdw])$`)

var expiryUnits = map[string]time.Duration{
	"h": time.Hour,
	"d": 24 * time.Hour,
	"w": 7 * 24 * time.Hour,
}

// Calendar dates are read as UTC.
var expiryDateLayouts = []string{"01/02/2006 15:04", "01/02/2006", time.DateOnly}

// ParseExpiry turns a token expiry flag into an absolute time relative to
// now. "never" and "" mean no expiry (nil). Accepted forms are 30d, 2w and
// 12h, any Go duration, and a future date as mm/dd/yyyy [HH:MM] or
// yyyy-mm-dd.
func ParseExpiry(s string, now time.Time) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "never" {
		return nil, nil
	}

	var at time.Time
	if m := relativeExpiry.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("expiry %q: %w", s, err)
		}
		at = now.Add(time.Duration(n) * expiryUnits[m[2]])
	} else if d, err := time.ParseDuration(s); err == nil {
		at = now.Add(d)
	} else {
		parsed := false
		for _, layout := range expiryDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				at, parsed = t, true
				break
			}
		}
		if !parsed {
			return nil, fmt.Errorf("invalid expiry %q: use never, 30d, 2w, 12h, a Go duration or a date like 12/25/2026", s)
		}
	}

	if !at.After(now) {
		return nil, fmt.Errorf("expiry %q is not in the future", s)
	}
	return &at, nil
}
