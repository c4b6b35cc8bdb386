package repository

import (
	"context"
	"fmt"
	"time"

	bookingserrors "campsite/internal/bookings/errors"
	"campsite/pkg/calendar"
	"campsite/pkg/config"
	mongotx "campsite/pkg/db/mongo"
	"campsite/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	DateCollectionName = "BookingDates"
)

// BookingDateRepository is the occupancy-index half of the reservation
// store. The collection's primary key is the calendar date itself, so
// inserting an already-claimed date fails with a duplicate key error no
// matter how the concurrent transactions interleave. That single
// uniqueness constraint is what makes a claim atomic without any
// application-level locking.
type BookingDateRepository interface {
	// FindOccupiedDates returns every claimed date in the half-open
	// range [startInclusive, endExclusive), ascending.
	FindOccupiedDates(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error)

	// Claim inserts one occupancy entry per reserved date of the
	// booking. A duplicate key means a second writer won the race: the
	// caller's surrounding transaction rolls the partial insert back
	// and an AlreadyBookedError is returned.
	Claim(ctx context.Context, booking *model.Booking) error

	// Release removes the booking's occupancy entries. Idempotent when
	// some dates are already absent.
	Release(ctx context.Context, booking *model.Booking) error
}

type mongoBookingDateRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoBookingDateRepository(cfg *config.Config) BookingDateRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoBookingDateRepository{
		cfg:        cfg,
		collection: db.Collection(DateCollectionName),
	}
}

func (r *mongoBookingDateRepository) FindOccupiedDates(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"_id": bson.M{
		"$gte": calendar.Truncate(startInclusive),
		"$lt":  calendar.Truncate(endExclusive),
	}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		if mongotx.IsTransientConflict(err) {
			return nil, fmt.Errorf("%w: %v", bookingserrors.ErrTransientConflict, err)
		}
		return nil, fmt.Errorf("failed to find occupied dates: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []model.BookingDate
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode occupied dates: %w", err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		dates = append(dates, calendar.Truncate(e.Date))
	}
	return dates, nil
}

func (r *mongoBookingDateRepository) Claim(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	dates := booking.ReservedDates()
	if len(dates) == 0 {
		return nil
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]any, 0, len(dates))
	for _, d := range dates {
		docs = append(docs, model.BookingDate{
			Date:      d,
			BookingID: booking.ID,
			CreatedAt: now,
		})
	}

	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		if mongotx.IsDuplicateKey(err) {
			// The racing occupant's dates are unknown at this level;
			// the engine re-reads the range to name them.
			return &bookingserrors.AlreadyBookedError{}
		}
		if mongotx.IsTransientConflict(err) {
			return fmt.Errorf("%w: %v", bookingserrors.ErrTransientConflict, err)
		}
		return fmt.Errorf("failed to claim booking dates: %w", err)
	}
	return nil
}

func (r *mongoBookingDateRepository) Release(ctx context.Context, booking *model.Booking) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	dates := booking.ReservedDates()
	if len(dates) == 0 {
		return nil
	}

	_, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": dates}})
	if err != nil {
		if mongotx.IsTransientConflict(err) {
			return fmt.Errorf("%w: %v", bookingserrors.ErrTransientConflict, err)
		}
		return fmt.Errorf("failed to release booking dates: %w", err)
	}
	return nil
}
