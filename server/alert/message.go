package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/fawwaz1234-rgb/ai-accident-Detection-beta/server/models"
)

// FormatMessage renders the human-readable alert body.
func FormatMessage(ev *models.AccidentEvent, address string) string {
	at := ev.ConfirmedAt
	if at.IsZero() {
		at = ev.CreatedAt
	}

	var b strings.Builder
	b.WriteString("ACCIDENT DETECTED\n\n")
	fmt.Fprintf(&b, "Location: %s\n", address)
	if ev.Location != nil {
		fmt.Fprintf(&b, "Coordinates: %.6f, %.6f", ev.Location.Latitude, ev.Location.Longitude)
		if !ev.LocationAvailable {
			b.WriteString(" (last known, may be outdated)")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("Coordinates: unavailable\n")
	}
	fmt.Fprintf(&b, "Camera: %s\n", ev.CameraID)
	fmt.Fprintf(&b, "Confidence: %.2f\n", ev.PeakConfidence)
	fmt.Fprintf(&b, "Vehicles Detected: %d\n", ev.VehicleCount)
	fmt.Fprintf(&b, "Time: %s\n", at.Format(time.DateTime))
	fmt.Fprintf(&b, "Event: %s\n\n", ev.ID)
	b.WriteString("Please dispatch emergency services immediately!")
	return b.String()
}
