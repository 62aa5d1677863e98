package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Train describes one scheduled service in the catalog.  Everything except
// AvailableSeats is fixed once the catalog has been loaded.
//
// Fields:
//  ID             – unique identifier assigned at catalog load time.
//  Name           – display name of the service.
//  Source         – departure station.
//  Destination    – arrival station.
//  Departure      – departure time of day ("HH:MM").
//  Arrival        – arrival time of day ("HH:MM").
//  TotalSeats     – seat capacity, fixed at creation.
//  AvailableSeats – unreserved seats; 0 <= AvailableSeats <= TotalSeats.
//  Fare           – flat per-seat fare.
type Train struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Source         string          `json:"source"`
	Destination    string          `json:"destination"`
	Departure      string          `json:"departure"`
	Arrival        string          `json:"arrival"`
	TotalSeats     int             `json:"total_seats"`
	AvailableSeats int             `json:"available_seats"`
	Fare           decimal.Decimal `json:"fare"`
}

// BookedSeats is the number of seats currently held by active tickets.
func (t Train) BookedSeats() int { return t.TotalSeats - t.AvailableSeats }

// ServesRoute reports whether the train runs from source to destination.
// Station names are compared after trimming and case folding.
func (t Train) ServesRoute(source, destination string) bool {
	return NormalizeStation(t.Source) == NormalizeStation(source) &&
		NormalizeStation(t.Destination) == NormalizeStation(destination)
}

// NormalizeStation returns the canonical form of a station name used for
// route matching and cache keys.
func NormalizeStation(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
