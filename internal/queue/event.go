// Package queue defines the ticket event payloads exchanged over RabbitMQ and
// the consumer that writes them to the tickets.log audit file.
package queue

import (
	"time"

	"github.com/iliyamo/train-reservation/internal/model"
)

// TicketEventsQueue is the durable queue carrying ticket lifecycle events.
const TicketEventsQueue = "ticket.events"

// Event types.
const (
	EventTicketBooked    = "ticket.booked"
	EventTicketCancelled = "ticket.cancelled"
)

// TicketEvent is published after a ticket is booked or cancelled.  It
// carries enough train and passenger detail for downstream consumers to
// log or notify without querying the reservation store.
type TicketEvent struct {
	Type           string `json:"type"`
	TicketID       int64  `json:"ticket_id"`
	PNR            string `json:"pnr"`
	TrainID        int64  `json:"train_id"`
	TrainName      string `json:"train_name"`
	Source         string `json:"source"`
	Destination    string `json:"destination"`
	Departure      string `json:"departure"`
	PassengerName  string `json:"passenger_name"`
	PassengerEmail string `json:"passenger_email"`
	SeatNumber     int    `json:"seat_number"`
	Fare           string `json:"fare"`
	Status         string `json:"status"`
	// SeatReleased is false when a cancellation could not return the
	// seat to availability.
	SeatReleased bool   `json:"seat_released"`
	OccurredAt   string `json:"occurred_at"`
}

// NewTicketEvent builds an event of the given type from a ticket and its
// train.
func NewTicketEvent(eventType string, t model.Ticket, train model.Train, at time.Time) TicketEvent {
	return TicketEvent{
		Type:           eventType,
		TicketID:       t.ID,
		PNR:            t.PNR(),
		TrainID:        t.TrainID,
		TrainName:      train.Name,
		Source:         train.Source,
		Destination:    train.Destination,
		Departure:      train.Departure,
		PassengerName:  t.PassengerName,
		PassengerEmail: t.PassengerEmail,
		SeatNumber:     t.SeatNumber,
		Fare:           t.Fare.StringFixed(2),
		Status:         string(t.Status),
		SeatReleased:   true,
		OccurredAt:     at.UTC().Format(time.RFC3339),
	}
}
