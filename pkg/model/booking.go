package model

import (
	"time"

	"campsite/pkg/calendar"
)

// Booking is a reservation of the campsite for the half-open date range
// [ArrivalDate, DepartureDate). Version is an optimistic concurrency
// counter: 0 on creation, incremented by the store on every successful
// mutation, and compared-and-swapped on update.
type Booking struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Version       int64     `json:"version" bson:"version"`
	Email         string    `json:"email" bson:"email" validate:"required,email"`
	Fullname      string    `json:"fullname" bson:"fullname" validate:"required,min=2,max=100"`
	ArrivalDate   time.Time `json:"arrival_date" bson:"arrival_date" validate:"required"`
	DepartureDate time.Time `json:"departure_date" bson:"departure_date" validate:"required"`
	CreatedAt     time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// ReservedDates returns the calendar dates this booking claims. It is
// always recomputed from the two boundary dates; the occupancy index is
// derived from it, never the other way around.
func (b *Booking) ReservedDates() []time.Time {
	return calendar.DatesBetween(b.ArrivalDate, b.DepartureDate)
}

// NormalizeDates truncates both boundary dates to calendar dates.
// Storage and the occupancy index only ever see midnight-UTC values.
func (b *Booking) NormalizeDates() {
	b.ArrivalDate = calendar.Truncate(b.ArrivalDate)
	b.DepartureDate = calendar.Truncate(b.DepartureDate)
}
