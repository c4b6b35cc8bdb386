package service

import (
	"context"
	"errors"
	"sync"
	"time"

	bookingserrors "campsite/internal/bookings/errors"
	"campsite/internal/bookings/events"
	"campsite/internal/bookings/repository"
	"campsite/internal/bookings/validator"
	"campsite/pkg/calendar"
	"campsite/pkg/config"
	apperrors "campsite/pkg/errors"
	"campsite/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// BookingService is the reservation engine. All mutations run inside
// one store transaction, so the check-occupancy / insert-occupancy /
// write-record sequence is atomic and no partial claim is ever visible.
// The engine classifies storage failures but never retries them; retry
// policy belongs to the caller.
type BookingService interface {
	Add(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	Update(ctx context.Context, id string, replacement *model.Booking) (*model.Booking, error)
	DeleteByID(ctx context.Context, id string) error
	GetAvailabilities(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	dates     repository.BookingDateRepository
	validator *validator.BookingValidator
	publisher events.Publisher
	cfg       *config.Config

	// beforeClaim runs between the occupancy check and the claim.
	// Concurrency tests install it to widen the race window; it is nil
	// in production and performs no work.
	beforeClaim func()
}

func NewBookingService(
	repo repository.BookingRepository,
	dates repository.BookingDateRepository,
	validator *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		dates:     dates,
		validator: validator,
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *bookingService) Add(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	booking.ID = ""
	booking.NormalizeDates()

	if err := s.validate(booking); err != nil {
		return nil, err
	}

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		occupied, err := s.dates.FindOccupiedDates(sessCtx, booking.ArrivalDate, booking.DepartureDate)
		if err != nil {
			return err
		}
		if len(occupied) > 0 {
			return &bookingserrors.AlreadyBookedError{Dates: occupied}
		}

		if s.beforeClaim != nil {
			s.beforeClaim()
		}

		if err := s.repo.Create(sessCtx, booking); err != nil {
			return err
		}
		return s.dates.Claim(sessCtx, booking)
	})
	if err != nil {
		s.cfg.Log.Warn("Failed to add booking",
			"arrival_date", booking.ArrivalDate.Format("2006-01-02"),
			"departure_date", booking.DepartureDate.Format("2006-01-02"),
			"error", err,
		)
		return nil, s.mapStoreError(ctx, booking, err)
	}

	s.publisher.BookingCreated(ctx, booking)
	s.cfg.Log.Info("Booking added",
		"id", booking.ID,
		"arrival_date", booking.ArrivalDate.Format("2006-01-02"),
		"departure_date", booking.DepartureDate.Format("2006-01-02"),
	)
	return booking, nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}
	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return bookings, count, nil
}

// Update replaces the booking's dates and details. Release of the old
// dates, the occupancy re-check, the claim of the new dates and the
// version-checked record write all happen in ONE transaction: either
// the replacement fully takes effect, or the old reservation stays
// intact, dates included. A concurrent writer that claimed one of the
// target dates surfaces as AlreadyBooked; a concurrent update of the
// same record surfaces as StaleVersion.
func (s *bookingService) Update(ctx context.Context, id string, replacement *model.Booking) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}
	replacement.NormalizeDates()

	if err := s.validate(replacement); err != nil {
		return nil, err
	}

	old, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid booking ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve booking", err)
	}

	// Identity and version carry over; the caller cannot pick them.
	replacement.ID = old.ID
	replacement.Version = old.Version
	replacement.CreatedAt = old.CreatedAt

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.dates.Release(sessCtx, old); err != nil {
			return err
		}

		occupied, err := s.dates.FindOccupiedDates(sessCtx, replacement.ArrivalDate, replacement.DepartureDate)
		if err != nil {
			return err
		}
		if len(occupied) > 0 {
			return &bookingserrors.AlreadyBookedError{Dates: occupied}
		}

		if err := s.repo.Update(sessCtx, replacement); err != nil {
			return err
		}
		return s.dates.Claim(sessCtx, replacement)
	})
	if err != nil {
		s.cfg.Log.Warn("Failed to update booking", "id", id, "error", err)
		return nil, s.mapStoreError(ctx, replacement, err)
	}

	s.publisher.BookingUpdated(ctx, replacement)
	s.cfg.Log.Info("Booking updated", "id", id, "version", replacement.Version)
	return replacement, nil
}

func (s *bookingService) DeleteByID(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}

	var deleted *model.Booking
	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		booking, err := s.repo.FindByID(sessCtx, id)
		if err != nil {
			return err
		}
		if err := s.dates.Release(sessCtx, booking); err != nil {
			return err
		}
		if err := s.repo.Delete(sessCtx, id); err != nil {
			return err
		}
		deleted = booking
		return nil
	})
	if err != nil {
		if errors.Is(err, bookingserrors.ErrNotFound) {
			return apperrors.NotFoundWithID("Booking", id)
		}
		if errors.Is(err, bookingserrors.ErrInvalidID) {
			return apperrors.InvalidInput("Invalid booking ID format")
		}
		return s.mapStoreError(ctx, nil, err)
	}

	s.publisher.BookingCancelled(ctx, deleted)
	s.cfg.Log.Info("Booking deleted", "id", id)
	return nil
}

// --- Helpers ---

func (s *bookingService) validate(booking *model.Booking) error {
	if err := s.validator.Validate(booking); err != nil {
		s.cfg.Log.Warn("Booking validation failed", "error", err)
		var violations validator.ValidationErrors
		if errors.As(err, &violations) {
			return apperrors.Validation("Booking validation failed", map[string]any{
				"rules": violations.Rules(),
			})
		}
		return apperrors.Internal("Booking validation failed", err)
	}
	return nil
}

// mapStoreError translates storage failure kinds into the application
// taxonomy without reinterpreting them.
func (s *bookingService) mapStoreError(ctx context.Context, booking *model.Booking, err error) error {
	if abe, ok := bookingserrors.IsAlreadyBooked(err); ok {
		dates := abe.Dates
		if len(dates) == 0 && booking != nil {
			dates = s.conflictingDates(ctx, booking)
		}
		return apperrors.AlreadyBooked(dates)
	}
	if errors.Is(err, bookingserrors.ErrStaleVersion) {
		id := ""
		if booking != nil {
			id = booking.ID
		}
		return apperrors.StaleVersion(id)
	}
	if errors.Is(err, bookingserrors.ErrTransientConflict) {
		return apperrors.TransientConflict(err)
	}
	if errors.Is(err, bookingserrors.ErrNotFound) {
		id := ""
		if booking != nil {
			id = booking.ID
		}
		return apperrors.NotFoundWithID("Booking", id)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Internal("Booking operation failed", err)
}

// conflictingDates names the occupant's dates after a claim lost a
// race. The transaction is already rolled back, so this is a plain
// read of the committed state.
func (s *bookingService) conflictingDates(ctx context.Context, booking *model.Booking) []time.Time {
	occupied, err := s.dates.FindOccupiedDates(ctx, booking.ArrivalDate, booking.DepartureDate)
	if err != nil {
		s.cfg.Log.Warn("Failed to resolve conflicting dates", "error", err)
		return nil
	}
	return occupied
}

// Truncate boundaries once at the service edge so the occupancy index
// only ever sees canonical calendar dates.
func normalizeRange(startInclusive, endExclusive time.Time) (time.Time, time.Time) {
	return calendar.Truncate(startInclusive), calendar.Truncate(endExclusive)
}
