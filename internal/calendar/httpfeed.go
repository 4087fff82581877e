package calendar

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// icalTimeLayouts covers the DTSTART/DTEND forms this minimal extractor
// accepts: a floating local time and a UTC time with a "Z" suffix.
// Timezone-qualified forms (TZID=...) and recurrence rules are not
// supported — this is a line-oriented VEVENT extractor, not a full
// calendar engine.
var icalTimeLayouts = []string{"20060102T150405Z", "20060102T150405"}

// HTTPFeed fetches an iCalendar document over HTTP and extracts the
// handful of VEVENT properties internal/calendar needs. Folded lines
// (RFC 5545 §3.1) and property parameters (e.g. "DTSTART;TZID=...") are
// handled; recurrence, exceptions, and escaped text are not. Full RFC
// 5545 parsing is intentionally out of scope.
type HTTPFeed struct {
	url    string
	client *http.Client
}

// NewHTTPFeed returns a Feed that GETs url on every Fetch call.
func NewHTTPFeed(url string, client *http.Client) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{url: url, client: client}
}

func (f *HTTPFeed) Fetch(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("calendar: build feed request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar: fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar: fetch feed: unexpected status %s", resp.Status)
	}

	return parseEvents(resp.Body)
}

func parseEvents(r interface{ Read([]byte) (int, error) }) ([]Event, error) {
	lines := unfold(r)

	var events []Event
	var cur *Event

	for _, line := range lines {
		switch {
		case line == "BEGIN:VEVENT":
			cur = &Event{}
		case line == "END:VEVENT":
			if cur != nil {
				events = append(events, *cur)
				cur = nil
			}
		case cur != nil:
			applyProperty(cur, line)
		}
	}

	return events, nil
}

func applyProperty(e *Event, line string) {
	name, value, ok := splitProperty(line)
	if !ok {
		return
	}

	switch name {
	case "UID":
		e.UID = value
	case "SUMMARY":
		e.Summary = value
	case "LOCATION":
		e.Location = value
	case "DTSTART":
		if t, err := parseICalTime(value); err == nil {
			e.StartDate = t
		}
	case "DTEND":
		if t, err := parseICalTime(value); err == nil {
			e.EndDate = t
		}
	}
}

// splitProperty splits "NAME;PARAM=x:value" into ("NAME", "value", true),
// discarding parameters.
func splitProperty(line string) (name, value string, ok bool) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return "", "", false
	}
	head := line[:colon]
	value = line[colon+1:]
	if semi := strings.IndexByte(head, ';'); semi >= 0 {
		head = head[:semi]
	}
	return strings.ToUpper(strings.TrimSpace(head)), value, true
}

func parseICalTime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range icalTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// unfold reads an RFC 5545 document and joins folded continuation lines
// (a line starting with a space or tab continues the previous line).
func unfold(r interface{ Read([]byte) (int, error) }) []string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), "\r")
		if len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += raw[1:]
			continue
		}
		lines = append(lines, raw)
	}
	return lines
}
