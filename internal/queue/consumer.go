package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditLogName is the file the consumer appends to inside its log directory.
const AuditLogName = "tickets.log"

// Consumer drains ticket.events into an append-only audit log.
type Consumer struct {
	URL    string
	LogDir string
	Logger *slog.Logger
}

// Run connects to RabbitMQ, declares the ticket.events queue (durable) and
// consumes until ctx is cancelled.  Broker failures trigger a reconnect
// with exponential backoff; messages that cannot be handled are rejected
// without requeue so the consumer keeps going.
func (c *Consumer) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ticket-consumer")

	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			logger.Warn("failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("consume loop ended; reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.Warn("set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(TicketEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.ConsumeWithContext(ctx, TicketEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := HandleMessage(c.LogDir, d.Body); err != nil {
			logger.Error("handle message failed", "error", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one TicketEvent and appends its audit line to
// dir/tickets.log.
func HandleMessage(dir string, body []byte) error {
	var ev TicketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.TicketID <= 0 {
		return fmt.Errorf("incomplete event: type=%q ticket_id=%d", ev.Type, ev.TicketID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, AuditLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders ev as a single log line.
func FormatAuditLine(ev TicketEvent) string {
	line := fmt.Sprintf("[%s] %s | pnr=%s | ticket_id=%d | train_id=%d | train=%q | route=%q | seat=%d | fare=%s | passenger=%q | email=%s | status=%s",
		ev.OccurredAt, ev.Type, ev.PNR, ev.TicketID, ev.TrainID, ev.TrainName,
		ev.Source+" -> "+ev.Destination, ev.SeatNumber, ev.Fare, ev.PassengerName, ev.PassengerEmail, ev.Status)
	if ev.Type == EventTicketCancelled && !ev.SeatReleased {
		line += " | seat_release=pending"
	}
	return line + "\n"
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
