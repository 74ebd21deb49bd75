package ingest

import (
	"fmt"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"

	"github.com/lucasjlepore/trainload"
)

// RouteSport reports swim when the GPX route declares a swim activity. Track types are
// checked first; metadata keywords and description only when no track carries a type.
// The bool is false when the route says nothing about the sport.
func RouteSport(path string) (trainload.Sport, bool, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return trainload.SportOther, false, fmt.Errorf("parse gpx: %w", err)
	}
	return routeSport(g)
}

func routeSport(g *gpx.GPX) (trainload.Sport, bool, error) {
	typed := false
	for _, track := range g.Tracks {
		if strings.TrimSpace(track.Type) == "" {
			continue
		}
		typed = true
		if isSwim(track.Type) {
			return trainload.SportSwim, true, nil
		}
	}
	if !typed && (isSwim(g.Keywords) || isSwim(g.Description)) {
		return trainload.SportSwim, true, nil
	}
	return trainload.SportOther, false, nil
}

func isSwim(s string) bool {
	return strings.Contains(strings.ToLower(s), "swim")
}

// ClassifyWithRoute refines a TCX sport with the GPX route. Only other is ever
// refined; a missing or unreadable route leaves the sport unchanged.
func ClassifyWithRoute(sport trainload.Sport, gpxPath string) (trainload.Sport, error) {
	if sport != trainload.SportOther || gpxPath == "" {
		return sport, nil
	}
	routed, ok, err := RouteSport(gpxPath)
	if err != nil {
		return sport, err
	}
	if ok {
		return routed, nil
	}
	return sport, nil
}
