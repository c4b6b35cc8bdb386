package model

import "time"

// BookingDate is one entry of the occupancy index: the presence of a
// document means that calendar date is claimed by exactly one live
// booking. The date is the document id, so the collection's primary key
// uniqueness is what arbitrates concurrent claims.
type BookingDate struct {
	Date      time.Time `bson:"_id" json:"date"`
	BookingID string    `bson:"booking_id" json:"booking_id"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
