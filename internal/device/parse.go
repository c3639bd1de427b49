package device

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/tvwarden/internal/detect"
)

// dumpsysTimeLayout is how dumpsys prints wall-clock timestamps.
const dumpsysTimeLayout = "2006-01-02 15:04:05"

var (
	eventLine   = regexp.MustCompile(`time="([^"]+)"\s+type=(\S+)\s+package=(\S+)`)
	resumedLine = regexp.MustCompile(`(?:mResumedActivity|topResumedActivity|ResumedActivity)[:=]\s*ActivityRecord\{\S+\s+\S+\s+([^/\s}]+)/`)
	statsLine   = regexp.MustCompile(`package=(\S+)\s+totalTime(?:Used|Visible)="([^"]+)"\s+lastTime(?:Used|Visible)="([^"]+)"`)
	ownerLine   = regexp.MustCompile(`admin=([^/\s,]+)/`)
)

// parseActivityEvents extracts resume and pause transitions from
// `dumpsys usagestats` output, keeping those within [since, until].
func parseActivityEvents(out string, since, until time.Time, loc *time.Location) []detect.ActivityEvent {
	var events []detect.ActivityEvent
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := eventLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		var typ detect.EventType
		switch m[2] {
		case "ACTIVITY_RESUMED", "MOVE_TO_FOREGROUND":
			typ = detect.EventResumed
		case "ACTIVITY_PAUSED", "MOVE_TO_BACKGROUND":
			typ = detect.EventPaused
		default:
			continue
		}
		ts, err := time.ParseInLocation(dumpsysTimeLayout, m[1], loc)
		if err != nil {
			continue
		}
		if ts.Before(since) || ts.After(until) {
			continue
		}
		events = append(events, detect.ActivityEvent{Time: ts, Type: typ, Package: m[3]})
	}
	return events
}

// parseResumedPackage finds the package of the resumed activity in
// `dumpsys activity activities` output.
func parseResumedPackage(out string) string {
	if m := resumedLine.FindStringSubmatch(out); m != nil {
		return m[1]
	}
	return ""
}

// parseUsageStats extracts per-package aggregates from `dumpsys usagestats`
// output. Packages appear once per interval bucket; the largest foreground
// time and latest use win.
func parseUsageStats(out string, loc *time.Location) []detect.UsageStat {
	byPkg := make(map[string]*detect.UsageStat)
	var order []string
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		m := statsLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		total, err := parseClockDuration(m[2])
		if err != nil {
			continue
		}
		last, err := time.ParseInLocation(dumpsysTimeLayout, m[3], loc)
		if err != nil {
			continue
		}
		s, ok := byPkg[m[1]]
		if !ok {
			s = &detect.UsageStat{Package: m[1]}
			byPkg[m[1]] = s
			order = append(order, m[1])
		}
		if total > s.ForegroundTime {
			s.ForegroundTime = total
		}
		if last.After(s.LastUsed) {
			s.LastUsed = last
		}
	}
	stats := make([]detect.UsageStat, 0, len(order))
	for _, pkg := range order {
		stats = append(stats, *byPkg[pkg])
	}
	return stats
}

// parseClockDuration parses dumpsys durations such as "01:02:03", "02:03"
// or "2:03.500".
func parseClockDuration(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	var whole int
	for _, p := range parts[:len(parts)-1] {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, err
		}
		whole = whole*60 + n
	}
	sec, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(whole)*time.Minute + time.Duration(sec*float64(time.Second)), nil
}

// parseDeviceOwner reports whether pkg is listed as device owner in
// `dpm list-owners` output.
func parseDeviceOwner(out, pkg string) bool {
	for _, line := range strings.Split(out, "\n") {
		m := ownerLine.FindStringSubmatch(line)
		if m == nil || m[1] != pkg {
			continue
		}
		if strings.Contains(line, "DeviceOwner") {
			return true
		}
	}
	return false
}

// parseResolvedComponent returns the component printed by
// `cmd package resolve-activity --brief`, or "" when nothing resolved.
func parseResolvedComponent(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.Contains(line, "/") && !strings.Contains(line, " ") {
			return line
		}
	}
	return ""
}
