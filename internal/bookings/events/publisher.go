// Package events publishes booking lifecycle events to Kafka.
// Publishing is best-effort after commit: a failed publish is logged
// and never rolls a booking back.
package events

import (
	"context"
	"time"

	"campsite/pkg/kafka"
	"campsite/pkg/logger"
	"campsite/pkg/model"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingUpdated   = "booking.updated"
	EventBookingCancelled = "booking.cancelled"

	schemaVersion = "1"
	source        = "campsited"
)

// Publisher emits booking lifecycle events.
type Publisher interface {
	BookingCreated(ctx context.Context, booking *model.Booking)
	BookingUpdated(ctx context.Context, booking *model.Booking)
	BookingCancelled(ctx context.Context, booking *model.Booking)
	Close() error
}

// BookingEvent is the payload carried by every lifecycle event.
type BookingEvent struct {
	BookingID     string    `json:"booking_id"`
	Version       int64     `json:"version"`
	Email         string    `json:"email"`
	Fullname      string    `json:"fullname"`
	ArrivalDate   string    `json:"arrival_date"`
	DepartureDate string    `json:"departure_date"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type kafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{producer: producer, log: log}
}

func (p *kafkaPublisher) BookingCreated(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, EventBookingCreated, booking)
}

func (p *kafkaPublisher) BookingUpdated(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, EventBookingUpdated, booking)
}

func (p *kafkaPublisher) BookingCancelled(ctx context.Context, booking *model.Booking) {
	p.publish(ctx, EventBookingCancelled, booking)
}

func (p *kafkaPublisher) publish(ctx context.Context, eventType string, booking *model.Booking) {
	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithEventType(eventType).
		WithSource(source).
		WithSchemaVersion(schemaVersion).
		WithValue(BookingEvent{
			BookingID:     booking.ID,
			Version:       booking.Version,
			Email:         booking.Email,
			Fullname:      booking.Fullname,
			ArrivalDate:   booking.ArrivalDate.Format("2006-01-02"),
			DepartureDate: booking.DepartureDate.Format("2006-01-02"),
			OccurredAt:    time.Now().UTC(),
		}).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Error("Failed to publish booking event",
			"event_type", eventType,
			"booking_id", booking.ID,
			"error", err,
		)
	}
}

func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}

// noopPublisher is used when no Kafka brokers are configured.
type noopPublisher struct{}

func NewNoopPublisher() Publisher {
	return noopPublisher{}
}

func (noopPublisher) BookingCreated(context.Context, *model.Booking)   {}
func (noopPublisher) BookingUpdated(context.Context, *model.Booking)   {}
func (noopPublisher) BookingCancelled(context.Context, *model.Booking) {}
func (noopPublisher) Close() error                                     { return nil }
