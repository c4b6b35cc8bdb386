package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	bookingserrors "campsite/internal/bookings/errors"
	"campsite/internal/bookings/repository"
	"campsite/internal/bookings/validator"
	"campsite/pkg/calendar"
	"campsite/pkg/config"
	mongotx "campsite/pkg/db/mongo"
	apperrors "campsite/pkg/errors"
	"campsite/pkg/logger"
	"campsite/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// sessionContext satisfies mongo.SessionContext for tests. The session
// methods are promoted from the embedded interface and never called.
type sessionContext struct {
	context.Context
	mongo.Session
}

// Mock repositories for testing

type mockBookingRepository struct {
	createFunc             func(ctx context.Context, booking *model.Booking) error
	findByIDFunc           func(ctx context.Context, id string) (*model.Booking, error)
	findAllFunc            func(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	countFunc              func(ctx context.Context) (int64, error)
	updateFunc             func(ctx context.Context, booking *model.Booking) error
	deleteFunc             func(ctx context.Context, id string) error
	executeTransactionFunc func(ctx context.Context, fn mongotx.TransactionFunc) error
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	booking.ID = "65f000000000000000000001"
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, bookingserrors.ErrNotFound
}

func (m *mockBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockBookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, booking)
	}
	booking.Version++
	return nil
}

func (m *mockBookingRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	if m.executeTransactionFunc != nil {
		return m.executeTransactionFunc(ctx, fn)
	}
	return fn(sessionContext{Context: ctx})
}

type mockBookingDateRepository struct {
	findOccupiedDatesFunc func(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error)
	claimFunc             func(ctx context.Context, booking *model.Booking) error
	releaseFunc           func(ctx context.Context, booking *model.Booking) error
}

func (m *mockBookingDateRepository) FindOccupiedDates(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error) {
	if m.findOccupiedDatesFunc != nil {
		return m.findOccupiedDatesFunc(ctx, startInclusive, endExclusive)
	}
	return nil, nil
}

func (m *mockBookingDateRepository) Claim(ctx context.Context, booking *model.Booking) error {
	if m.claimFunc != nil {
		return m.claimFunc(ctx, booking)
	}
	return nil
}

func (m *mockBookingDateRepository) Release(ctx context.Context, booking *model.Booking) error {
	if m.releaseFunc != nil {
		return m.releaseFunc(ctx, booking)
	}
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	created   []string
	updated   []string
	cancelled []string
}

func (p *recordingPublisher) BookingCreated(_ context.Context, b *model.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, b.ID)
}

func (p *recordingPublisher) BookingUpdated(_ context.Context, b *model.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, b.ID)
}

func (p *recordingPublisher) BookingCancelled(_ context.Context, b *model.Booking) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, b.ID)
}

func (p *recordingPublisher) Close() error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		Log: logger.New(logger.Config{
			Level:   "error",
			Format:  logger.FormatText,
			Service: "test",
		}),
	}
}

func testService(repo repository.BookingRepository, dates repository.BookingDateRepository, pub *recordingPublisher) *bookingService {
	cfg := testConfig()
	return &bookingService{
		repo:      repo,
		dates:     dates,
		validator: validator.NewBookingValidator(validator.Policy{MaxStayDays: 3, MinLeadDays: 1, MaxLeadDays: 30}, cfg.Log),
		publisher: pub,
		cfg:       cfg,
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// validBooking returns a booking that passes the default policy at the
// real clock: two nights, arriving in two days.
func validBooking() *model.Booking {
	arrival := calendar.Truncate(time.Now()).AddDate(0, 0, 2)
	return &model.Booking{
		Email:         "john.doe@example.com",
		Fullname:      "John Doe",
		ArrivalDate:   arrival,
		DepartureDate: arrival.AddDate(0, 0, 2),
	}
}

func TestAdd_Success(t *testing.T) {
	pub := &recordingPublisher{}
	svc := testService(&mockBookingRepository{}, &mockBookingDateRepository{}, pub)

	booking, err := svc.Add(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.ID == "" {
		t.Error("expected booking to receive an ID")
	}
	if booking.Version != 0 {
		t.Errorf("expected version 0, got %d", booking.Version)
	}
	if len(pub.created) != 1 || pub.created[0] != booking.ID {
		t.Errorf("expected one created event for %s, got %v", booking.ID, pub.created)
	}
}

func TestAdd_DatesAlreadyOccupied(t *testing.T) {
	b := validBooking()
	occupied := []time.Time{b.ArrivalDate}
	dates := &mockBookingDateRepository{
		findOccupiedDatesFunc: func(_ context.Context, _, _ time.Time) ([]time.Time, error) {
			return occupied, nil
		},
	}
	pub := &recordingPublisher{}
	svc := testService(&mockBookingRepository{}, dates, pub)

	_, err := svc.Add(context.Background(), b)
	if !apperrors.HasCode(err, apperrors.CodeAlreadyBooked) {
		t.Fatalf("expected ALREADY_BOOKED, got %v", err)
	}
	appErr := apperrors.AsAppError(err)
	conflicts, ok := appErr.Details["dates"].([]string)
	if !ok || len(conflicts) != 1 || conflicts[0] != b.ArrivalDate.Format("2006-01-02") {
		t.Errorf("expected conflicting dates in details, got %v", appErr.Details)
	}
	if len(pub.created) != 0 {
		t.Error("no event must be published for a rejected booking")
	}
}

func TestAdd_ClaimLosesRace(t *testing.T) {
	// The availability check passes, then the claim hits a duplicate
	// key because a concurrent writer committed first. The conflicting
	// dates are resolved with a follow-up read of committed state.
	b := validBooking()
	var reads int
	dates := &mockBookingDateRepository{
		findOccupiedDatesFunc: func(_ context.Context, _, _ time.Time) ([]time.Time, error) {
			reads++
			if reads == 1 {
				return nil, nil
			}
			return []time.Time{b.ArrivalDate, b.ArrivalDate.AddDate(0, 0, 1)}, nil
		},
		claimFunc: func(_ context.Context, _ *model.Booking) error {
			return &bookingserrors.AlreadyBookedError{}
		},
	}
	svc := testService(&mockBookingRepository{}, dates, &recordingPublisher{})

	_, err := svc.Add(context.Background(), b)
	if !apperrors.HasCode(err, apperrors.CodeAlreadyBooked) {
		t.Fatalf("expected ALREADY_BOOKED, got %v", err)
	}
	appErr := apperrors.AsAppError(err)
	conflicts, _ := appErr.Details["dates"].([]string)
	if len(conflicts) != 2 {
		t.Errorf("expected 2 conflicting dates from the follow-up read, got %v", conflicts)
	}
	if reads != 2 {
		t.Errorf("expected a second occupancy read, got %d reads", reads)
	}
}

func TestAdd_SameDayArrivalAndDeparture(t *testing.T) {
	b := validBooking()
	b.DepartureDate = b.ArrivalDate

	var txCalls int
	repo := &mockBookingRepository{
		executeTransactionFunc: func(ctx context.Context, fn mongotx.TransactionFunc) error {
			txCalls++
			return fn(sessionContext{Context: ctx})
		},
	}
	svc := testService(repo, &mockBookingDateRepository{}, &recordingPublisher{})

	_, err := svc.Add(context.Background(), b)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	if txCalls != 0 {
		t.Error("rejected booking must never reach the store")
	}
}

func TestAdd_TransientConflict(t *testing.T) {
	repo := &mockBookingRepository{
		executeTransactionFunc: func(ctx context.Context, fn mongotx.TransactionFunc) error {
			return fmt.Errorf("run transaction: %w", bookingserrors.ErrTransientConflict)
		},
	}
	svc := testService(repo, &mockBookingDateRepository{}, &recordingPublisher{})

	_, err := svc.Add(context.Background(), validBooking())
	if !apperrors.HasCode(err, apperrors.CodeTransientConflict) {
		t.Fatalf("expected TRANSIENT_CONFLICT, got %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	old := validBooking()
	old.ID = "65f000000000000000000001"
	old.Version = 3
	old.CreatedAt = date(2026, time.August, 1)

	var ops []string
	repo := &mockBookingRepository{
		findByIDFunc: func(_ context.Context, id string) (*model.Booking, error) {
			copied := *old
			return &copied, nil
		},
		updateFunc: func(_ context.Context, b *model.Booking) error {
			ops = append(ops, "update")
			if b.Version != 3 {
				t.Errorf("expected CAS against version 3, got %d", b.Version)
			}
			b.Version++
			return nil
		},
	}
	dates := &mockBookingDateRepository{
		releaseFunc: func(_ context.Context, b *model.Booking) error {
			ops = append(ops, "release")
			return nil
		},
		findOccupiedDatesFunc: func(_ context.Context, _, _ time.Time) ([]time.Time, error) {
			ops = append(ops, "check")
			return nil, nil
		},
		claimFunc: func(_ context.Context, b *model.Booking) error {
			ops = append(ops, "claim")
			return nil
		},
	}
	pub := &recordingPublisher{}
	svc := testService(repo, dates, pub)

	replacement := validBooking()
	replacement.ArrivalDate = replacement.ArrivalDate.AddDate(0, 0, 5)
	replacement.DepartureDate = replacement.ArrivalDate.AddDate(0, 0, 1)

	updated, err := svc.Update(context.Background(), old.ID, replacement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != old.ID {
		t.Errorf("expected identity to carry over, got %s", updated.ID)
	}
	if updated.Version != 4 {
		t.Errorf("expected version 4 after update, got %d", updated.Version)
	}
	want := []string{"release", "check", "update", "claim"}
	if len(ops) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, ops)
		}
	}
	if len(pub.updated) != 1 {
		t.Errorf("expected one updated event, got %v", pub.updated)
	}
}

func TestUpdate_StaleVersion(t *testing.T) {
	old := validBooking()
	old.ID = "65f000000000000000000001"
	old.Version = 3

	repo := &mockBookingRepository{
		findByIDFunc: func(_ context.Context, id string) (*model.Booking, error) {
			copied := *old
			return &copied, nil
		},
		updateFunc: func(_ context.Context, b *model.Booking) error {
			return bookingserrors.ErrStaleVersion
		},
	}
	svc := testService(repo, &mockBookingDateRepository{}, &recordingPublisher{})

	_, err := svc.Update(context.Background(), old.ID, validBooking())
	if !apperrors.HasCode(err, apperrors.CodeStaleVersion) {
		t.Fatalf("expected STALE_VERSION, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc := testService(&mockBookingRepository{}, &mockBookingDateRepository{}, &recordingPublisher{})

	_, err := svc.Update(context.Background(), "65f000000000000000000099", validBooking())
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestDeleteByID_Success(t *testing.T) {
	b := validBooking()
	b.ID = "65f000000000000000000001"

	var released, deleted bool
	repo := &mockBookingRepository{
		findByIDFunc: func(_ context.Context, id string) (*model.Booking, error) {
			copied := *b
			return &copied, nil
		},
		deleteFunc: func(_ context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	dates := &mockBookingDateRepository{
		releaseFunc: func(_ context.Context, _ *model.Booking) error {
			released = true
			return nil
		},
	}
	pub := &recordingPublisher{}
	svc := testService(repo, dates, pub)

	if err := svc.DeleteByID(context.Background(), b.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !released || !deleted {
		t.Errorf("expected release and delete, got released=%v deleted=%v", released, deleted)
	}
	if len(pub.cancelled) != 1 {
		t.Errorf("expected one cancelled event, got %v", pub.cancelled)
	}
}

func TestDeleteByID_NotFound(t *testing.T) {
	svc := testService(&mockBookingRepository{}, &mockBookingDateRepository{}, &recordingPublisher{})

	err := svc.DeleteByID(context.Background(), "65f000000000000000000099")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestGetAvailabilities(t *testing.T) {
	tests := []struct {
		name     string
		occupied []time.Time
		start    time.Time
		end      time.Time
		want     []time.Time
	}{
		{
			name:     "one booking in the middle of the range",
			occupied: []time.Time{date(2021, time.January, 29), date(2021, time.January, 30)},
			start:    date(2021, time.January, 28),
			end:      date(2021, time.February, 3),
			want: []time.Time{
				date(2021, time.January, 28),
				date(2021, time.January, 31),
				date(2021, time.February, 1),
				date(2021, time.February, 2),
			},
		},
		{
			name: "two bookings with a gap",
			occupied: []time.Time{
				date(2021, time.February, 1),
				date(2021, time.February, 2),
				date(2021, time.February, 4),
			},
			start: date(2021, time.January, 30),
			end:   date(2021, time.February, 6),
			want: []time.Time{
				date(2021, time.January, 30),
				date(2021, time.January, 31),
				date(2021, time.February, 3),
				date(2021, time.February, 5),
			},
		},
		{
			name:  "empty campsite",
			start: date(2021, time.March, 1),
			end:   date(2021, time.March, 4),
			want: []time.Time{
				date(2021, time.March, 1),
				date(2021, time.March, 2),
				date(2021, time.March, 3),
			},
		},
		{
			name:  "start equals end",
			start: date(2021, time.February, 1),
			end:   date(2021, time.February, 1),
			want:  []time.Time{},
		},
		{
			name:     "fully booked range",
			occupied: []time.Time{date(2021, time.March, 1), date(2021, time.March, 2)},
			start:    date(2021, time.March, 1),
			end:      date(2021, time.March, 3),
			want:     []time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dates := &mockBookingDateRepository{
				findOccupiedDatesFunc: func(_ context.Context, _, _ time.Time) ([]time.Time, error) {
					return tt.occupied, nil
				},
			}
			svc := testService(&mockBookingRepository{}, dates, &recordingPublisher{})

			got, err := svc.GetAvailabilities(context.Background(), tt.start, tt.end)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d dates, got %d: %v", len(tt.want), len(got), got)
			}
			for i := range tt.want {
				if !got[i].Equal(tt.want[i]) {
					t.Errorf("dates[%d]: expected %s, got %s",
						i, tt.want[i].Format("2006-01-02"), got[i].Format("2006-01-02"))
				}
			}
		})
	}
}

func TestGetAvailabilities_InvalidRange(t *testing.T) {
	svc := testService(&mockBookingRepository{}, &mockBookingDateRepository{}, &recordingPublisher{})

	_, err := svc.GetAvailabilities(context.Background(), date(2021, time.February, 3), date(2021, time.February, 1))
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

// --- In-memory store backing the concurrency tests ---

// memoryStore implements both repositories over mutex-guarded maps.
// ExecuteTransaction journals every write and rolls the journal back on
// failure, so a losing claim never leaves a partial booking behind.
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	bookings map[string]*model.Booking
	occupied map[time.Time]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		bookings: make(map[string]*model.Booking),
		occupied: make(map[time.Time]string),
	}
}

type txJournalKey struct{}

type txJournal struct {
	createdIDs    []string
	claimedDates  []time.Time
	releasedDates map[time.Time]string
	prevBookings  map[string]*model.Booking
}

func journalFrom(ctx context.Context) *txJournal {
	j, _ := ctx.Value(txJournalKey{}).(*txJournal)
	return j
}

func (s *memoryStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	j := &txJournal{
		releasedDates: make(map[time.Time]string),
		prevBookings:  make(map[string]*model.Booking),
	}
	err := fn(sessionContext{Context: context.WithValue(ctx, txJournalKey{}, j)})
	if err != nil {
		s.rollback(j)
		return err
	}
	return nil
}

func (s *memoryStore) rollback(j *txJournal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range j.createdIDs {
		delete(s.bookings, id)
	}
	for _, d := range j.claimedDates {
		delete(s.occupied, d)
	}
	for d, id := range j.releasedDates {
		s.occupied[d] = id
	}
	for id, prev := range j.prevBookings {
		if prev == nil {
			delete(s.bookings, id)
		} else {
			s.bookings[id] = prev
		}
	}
}

func (s *memoryStore) Create(ctx context.Context, booking *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	booking.ID = fmt.Sprintf("%024x", s.seq)
	booking.Version = 0
	copied := *booking
	s.bookings[booking.ID] = &copied
	if j := journalFrom(ctx); j != nil {
		j.createdIDs = append(j.createdIDs, booking.ID)
	}
	return nil
}

func (s *memoryStore) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, bookingserrors.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (s *memoryStore) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*model.Booking
	for _, b := range s.bookings {
		copied := *b
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ArrivalDate.Before(all[j].ArrivalDate) })
	return all, nil
}

func (s *memoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.bookings)), nil
}

func (s *memoryStore) Update(ctx context.Context, booking *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[booking.ID]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if cur.Version != booking.Version {
		return bookingserrors.ErrStaleVersion
	}
	if j := journalFrom(ctx); j != nil {
		if _, seen := j.prevBookings[booking.ID]; !seen {
			j.prevBookings[booking.ID] = cur
		}
	}
	booking.Version++
	copied := *booking
	s.bookings[booking.ID] = &copied
	return nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[id]
	if !ok {
		return bookingserrors.ErrNotFound
	}
	if j := journalFrom(ctx); j != nil {
		if _, seen := j.prevBookings[id]; !seen {
			j.prevBookings[id] = cur
		}
	}
	delete(s.bookings, id)
	return nil
}

func (s *memoryStore) FindOccupiedDates(ctx context.Context, startInclusive, endExclusive time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var occupied []time.Time
	for d := range s.occupied {
		if !d.Before(startInclusive) && d.Before(endExclusive) {
			occupied = append(occupied, d)
		}
	}
	sort.Slice(occupied, func(i, j int) bool { return occupied[i].Before(occupied[j]) })
	return occupied, nil
}

func (s *memoryStore) Claim(ctx context.Context, booking *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dates := booking.ReservedDates()
	var conflicts []time.Time
	for _, d := range dates {
		if _, taken := s.occupied[d]; taken {
			conflicts = append(conflicts, d)
		}
	}
	if len(conflicts) > 0 {
		return &bookingserrors.AlreadyBookedError{Dates: conflicts}
	}
	j := journalFrom(ctx)
	for _, d := range dates {
		s.occupied[d] = booking.ID
		if j != nil {
			j.claimedDates = append(j.claimedDates, d)
		}
	}
	return nil
}

func (s *memoryStore) Release(ctx context.Context, booking *model.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := journalFrom(ctx)
	for _, d := range booking.ReservedDates() {
		if s.occupied[d] != booking.ID {
			continue
		}
		delete(s.occupied, d)
		if j != nil {
			j.releasedDates[d] = booking.ID
		}
	}
	return nil
}

func memoryService(store *memoryStore) *bookingService {
	cfg := testConfig()
	return &bookingService{
		repo:      store,
		dates:     store,
		validator: validator.NewBookingValidator(validator.Policy{MaxStayDays: 3, MinLeadDays: 1, MaxLeadDays: 30}, cfg.Log),
		publisher: &recordingPublisher{},
		cfg:       cfg,
	}
}

func TestAdd_ConcurrentOverlap_ExactlyOneWinner(t *testing.T) {
	store := newMemoryStore()
	svc := memoryService(store)

	// Hold both writers at the point between the availability check and
	// the claim, so each has already seen the range as free.
	var barrier sync.WaitGroup
	barrier.Add(2)
	svc.beforeClaim = func() {
		barrier.Done()
		barrier.Wait()
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Add(context.Background(), validBooking())
		}(i)
	}
	wg.Wait()

	var winners, losers int
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case apperrors.HasCode(err, apperrors.CodeAlreadyBooked):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Fatalf("expected exactly one winner and one ALREADY_BOOKED loser, got %d/%d (%v)", winners, losers, errs)
	}

	if len(store.bookings) != 1 {
		t.Errorf("expected exactly one stored booking, got %d", len(store.bookings))
	}
	want := validBooking()
	for _, d := range want.ReservedDates() {
		if _, taken := store.occupied[d]; !taken {
			t.Errorf("expected %s to stay occupied by the winner", d.Format("2006-01-02"))
		}
	}
}

func TestAdd_ConcurrentDisjointRanges_BothSucceed(t *testing.T) {
	store := newMemoryStore()
	svc := memoryService(store)

	var barrier sync.WaitGroup
	barrier.Add(2)
	svc.beforeClaim = func() {
		barrier.Done()
		barrier.Wait()
	}

	first := validBooking()
	second := validBooking()
	second.ArrivalDate = first.DepartureDate
	second.DepartureDate = second.ArrivalDate.AddDate(0, 0, 2)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for i, b := range []*model.Booking{first, second} {
		go func(i int, b *model.Booking) {
			defer wg.Done()
			_, errs[i] = svc.Add(context.Background(), b)
		}(i, b)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("booking %d: unexpected error: %v", i, err)
		}
	}
	if len(store.bookings) != 2 {
		t.Errorf("expected two stored bookings, got %d", len(store.bookings))
	}
	if len(store.occupied) != 4 {
		t.Errorf("expected four occupied dates, got %d", len(store.occupied))
	}
}

func TestUpdate_MovesOccupancyAtomically(t *testing.T) {
	store := newMemoryStore()
	svc := memoryService(store)

	created, err := svc.Add(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	replacement := validBooking()
	replacement.ArrivalDate = created.DepartureDate.AddDate(0, 0, 3)
	replacement.DepartureDate = replacement.ArrivalDate.AddDate(0, 0, 2)

	updated, err := svc.Update(context.Background(), created.ID, replacement)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("expected version 1, got %d", updated.Version)
	}
	for _, d := range created.ReservedDates() {
		if _, taken := store.occupied[d]; taken {
			t.Errorf("expected old date %s to be released", d.Format("2006-01-02"))
		}
	}
	for _, d := range updated.ReservedDates() {
		if store.occupied[d] != updated.ID {
			t.Errorf("expected new date %s to be claimed", d.Format("2006-01-02"))
		}
	}
}

func TestUpdate_ConflictRestoresOldDates(t *testing.T) {
	store := newMemoryStore()
	svc := memoryService(store)

	created, err := svc.Add(context.Background(), validBooking())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	blocker := validBooking()
	blocker.ArrivalDate = created.DepartureDate.AddDate(0, 0, 3)
	blocker.DepartureDate = blocker.ArrivalDate.AddDate(0, 0, 2)
	if _, err := svc.Add(context.Background(), blocker); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Try to move the first booking onto the blocker's dates.
	replacement := validBooking()
	replacement.ArrivalDate = blocker.ArrivalDate
	replacement.DepartureDate = blocker.DepartureDate

	_, err = svc.Update(context.Background(), created.ID, replacement)
	if !apperrors.HasCode(err, apperrors.CodeAlreadyBooked) {
		t.Fatalf("expected ALREADY_BOOKED, got %v", err)
	}
	// The failed transaction must leave the original claim intact.
	for _, d := range created.ReservedDates() {
		if store.occupied[d] != created.ID {
			t.Errorf("expected %s to remain claimed by the original booking", d.Format("2006-01-02"))
		}
	}
	got, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.ArrivalDate.Equal(created.ArrivalDate) || got.Version != 0 {
		t.Errorf("expected original record unchanged, got arrival=%s version=%d",
			got.ArrivalDate.Format("2006-01-02"), got.Version)
	}
}
