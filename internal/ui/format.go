// ABOUTME: Terminal UI formatting utilities
// ABOUTME: Provides human-readable output for fixes, alerts, errors, and journal tracks

package ui

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/harper/offroute/internal/models"
)

var faint = color.New(color.Faint)

// FormatCoords renders a point as (lat, lng).
func FormatCoords(p models.Point) string {
	return fmt.Sprintf("(%.5f, %.5f)", p.Latitude, p.Longitude)
}

// FormatDistance renders meters, switching to kilometers past 1000 m.
func FormatDistance(m float64) string {
	if m >= 1000 {
		return fmt.Sprintf("%.2f km", m/1000)
	}
	return fmt.Sprintf("%.0f m", m)
}

// FormatEvent formats a session event for the live tracking view.
func FormatEvent(ev models.Event) string {
	if ev.IsError() {
		return FormatError(ev.Err, ev.ErrCode)
	}
	if ev.Location == nil {
		return faint.Sprint("(empty event)")
	}
	return FormatFix(*ev.Location, ev.Deviation)
}

// FormatFix formats one accepted location with its deviation, when known.
func FormatFix(loc models.Location, dev *models.DeviationReport) string {
	ts := loc.Time().Format("15:04:05")
	coords := FormatCoords(loc.Point())
	acc := faint.Sprintf("±%.0fm", loc.Accuracy)

	if dev == nil {
		return fmt.Sprintf("%s %s %s", faint.Sprint(ts), color.CyanString(coords), acc)
	}

	dist := FormatDistance(dev.Distance)
	switch {
	case dev.Alerted:
		return fmt.Sprintf("%s %s %s %s", faint.Sprint(ts), color.CyanString(coords), acc,
			color.New(color.FgRed, color.Bold).Sprintf("OFF ROUTE %s", dist))
	case dev.OffRoute:
		return fmt.Sprintf("%s %s %s %s", faint.Sprint(ts), color.CyanString(coords), acc,
			color.YellowString("off route %s", dist))
	default:
		return fmt.Sprintf("%s %s %s %s", faint.Sprint(ts), color.CyanString(coords), acc,
			color.GreenString("on route %s", dist))
	}
}

// FormatError formats an asynchronous session error.
func FormatError(err error, code string) string {
	if code == "" {
		return color.RedString("error: %v", err)
	}
	return fmt.Sprintf("%s %s", color.New(color.FgRed, color.Bold).Sprint(code), color.RedString("%v", err))
}

// FormatAlert formats a journaled alert.
func FormatAlert(a *models.Alert) string {
	return fmt.Sprintf("  %s %s %s",
		a.FiredAt.Format("Jan 2, 3:04:05 PM"),
		color.CyanString(FormatCoords(a.Point)),
		color.RedString(FormatDistance(a.Distance)))
}

// FormatTrack formats a journal track summary line.
func FormatTrack(t *models.Track, fixes, alerts int) string {
	status := color.GreenString("recording")
	if t.EndedAt != nil {
		status = faint.Sprint(FormatDuration(t.EndedAt.Sub(t.StartedAt)))
	}

	alertStr := faint.Sprint("no alerts")
	if alerts == 1 {
		alertStr = color.RedString("1 alert")
	} else if alerts > 1 {
		alertStr = color.RedString("%d alerts", alerts)
	}

	return fmt.Sprintf("%s %s - %d fixes, %s (%s)",
		color.New(color.Bold).Sprint(t.ID.String()[:8]),
		FormatRelativeTime(t.StartedAt),
		fixes,
		alertStr,
		status)
}

// FormatDuration renders a duration rounded to the second.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// FormatRelativeTime formats a time as relative to now.
func FormatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	// Handle future times (clock skew, bad data)
	if diff < 0 {
		return color.YellowString("in the future")
	}

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(diff.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
