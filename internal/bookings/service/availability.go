package service

import (
	"context"
	"time"

	"campsite/pkg/calendar"
	apperrors "campsite/pkg/errors"
)

// GetAvailabilities answers which calendar dates in
// [startInclusive, endExclusive) carry no reservation. The occupied
// set comes from a single store read, so the answer reflects one
// consistent snapshot; callers that need monotonic answers across
// calls must re-query.
func (s *bookingService) GetAvailabilities(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error) {
	start, end := normalizeRange(startInclusive, endExclusive)
	if end.Before(start) {
		return nil, apperrors.InvalidInput("Start date must not be after end date")
	}

	occupied, err := s.dates.FindOccupiedDates(ctx, start, end)
	if err != nil {
		s.cfg.Log.Error("Failed to read occupied dates", "error", err)
		return nil, apperrors.Internal("Failed to compute availabilities", err)
	}
	return availableDates(calendar.DatesBetween(start, end), occupied), nil
}

// availableDates returns all minus occupied, keeping ascending order.
func availableDates(all, occupied []time.Time) []time.Time {
	taken := make(map[time.Time]struct{}, len(occupied))
	for _, d := range occupied {
		taken[calendar.Truncate(d)] = struct{}{}
	}
	free := make([]time.Time, 0, len(all))
	for _, d := range all {
		if _, ok := taken[d]; !ok {
			free = append(free, d)
		}
	}
	return free
}
