package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the lifecycle state of a ticket.  The only legal
// transition is BOOKED -> CANCELLED.
type TicketStatus string

const (
	StatusBooked    TicketStatus = "BOOKED"
	StatusCancelled TicketStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	return s == StatusBooked || s == StatusCancelled
}

// Ticket records a single seat reservation on a train.  Passenger contact
// fields may change while the ticket is BOOKED; every other field is
// immutable once the ticket has been issued.
type Ticket struct {
	ID             int64           `json:"id"`
	TrainID        int64           `json:"train_id"`
	PassengerName  string          `json:"passenger_name"`
	PassengerEmail string          `json:"passenger_email"`
	PassengerPhone string          `json:"passenger_phone"`
	SeatNumber     int             `json:"seat_number"`
	Fare           decimal.Decimal `json:"fare"`
	BookedAt       time.Time       `json:"booked_at"`
	Status         TicketStatus    `json:"status"`
}

// Active reports whether the ticket still holds its seat.
func (t Ticket) Active() bool { return t.Status == StatusBooked }

// PNR is the passenger name record printed on reservation slips.
func (t Ticket) PNR() string { return fmt.Sprintf("TN%010d", t.ID) }

// Unknown is shown in place of train fields when a ticket references a
// train that is no longer in the catalog.
const Unknown = "Unknown"

// TicketView joins a ticket with the train details needed for display.
type TicketView struct {
	Ticket
	PNR         string `json:"pnr"`
	TrainName   string `json:"train_name"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Departure   string `json:"departure"`
	Arrival     string `json:"arrival"`
}

// NewTicketView builds the display view of t.  A nil train yields Unknown
// for every train field.
func NewTicketView(t Ticket, train *Train) TicketView {
	v := TicketView{
		Ticket:      t,
		PNR:         t.PNR(),
		TrainName:   Unknown,
		Source:      Unknown,
		Destination: Unknown,
		Departure:   Unknown,
		Arrival:     Unknown,
	}
	if train != nil {
		v.TrainName = train.Name
		v.Source = train.Source
		v.Destination = train.Destination
		v.Departure = train.Departure
		v.Arrival = train.Arrival
	}
	return v
}
