package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/events"
	"shareit/internal/models"
	"shareit/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type mockEventBus struct {
	mock.Mock
}

func (m *mockEventBus) PublishJSON(et string, p interface{}) error { return m.Called(et, p).Error(0) }

type testEnv struct {
	db       *database.DB
	bus      *events.EventBus
	bookings *BookingService
	items    *ItemService
	users    *UserService
	requests *RequestService

	owner  models.User
	booker models.User
	other  models.User
	item   models.Item

	mu        sync.Mutex
	published []string
}

func newTestEnv(t *testing.T, boundary string) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{db: db, bus: events.NewEventBus()}
	for _, eventType := range []string{
		events.EventBookingCreated, events.EventBookingApproved, events.EventBookingRejected,
		events.EventItemCreated, events.EventItemUpdated, events.EventCommentAdded,
		events.EventRequestCreated,
	} {
		env.bus.Subscribe(eventType, func(ev *events.Event) error {
			env.mu.Lock()
			defer env.mu.Unlock()
			env.published = append(env.published, ev.Type)
			return nil
		})
	}

	env.bookings, err = NewBookingService(db, repository.NewMemoryCoordinator(), env.bus,
		config.BookingConfig{ConflictBoundary: boundary}, &logger)
	require.NoError(t, err)
	env.bookings.now = func() time.Time { return testNow }
	env.items = NewItemService(db, env.bookings, env.bus, 0, &logger)
	env.items.now = func() time.Time { return testNow }
	env.users = NewUserService(db, &logger)
	env.requests = NewRequestService(db, env.bus, &logger)
	env.requests.now = func() time.Time { return testNow }

	env.owner = env.createUser(t, "Owner", "owner@example.com")
	env.booker = env.createUser(t, "Booker", "booker@example.com")
	env.other = env.createUser(t, "Other", "other@example.com")

	item, err := env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Drill", Description: "Cordless drill", Available: true})
	require.NoError(t, err)
	env.item = *item

	env.resetEvents()
	return env
}

func (e *testEnv) resetEvents() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.published = nil
}

func (e *testEnv) createUser(t *testing.T, name, email string) models.User {
	t.Helper()
	u, err := e.users.CreateUser(context.Background(), models.User{Name: name, Email: email})
	require.NoError(t, err)
	return *u
}

func (e *testEnv) book(t *testing.T, bookerID int64, from, to time.Duration) *models.BookingView {
	t.Helper()
	view, err := e.bookings.AddBooking(context.Background(), e.item.ID, bookerID, testNow.Add(from), testNow.Add(to))
	require.NoError(t, err)
	return view
}

func (e *testEnv) events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.published...)
}

func assertKind(t *testing.T, err error, kind models.ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := models.KindOf(err)
	require.True(t, ok, "expected domain error %s, got %v", kind, err)
	assert.Equal(t, kind, got)
}

func TestNewBookingServiceRejectsUnknownBoundary(t *testing.T) {
	_, err := NewBookingService(nil, nil, nil, config.BookingConfig{ConflictBoundary: "middle"}, nil)
	assert.Error(t, err)
}

func TestAddBooking_EmptyScheduleIsAccepted(t *testing.T) {
	env := newTestEnv(t, "")

	view := env.book(t, env.booker.ID, time.Minute, 24*time.Hour)

	assert.NotZero(t, view.ID)
	assert.Equal(t, models.StatusWaiting, view.Status)
	assert.Equal(t, testNow.Add(time.Minute), view.Start)
	assert.Equal(t, models.UserRef{ID: env.booker.ID, Name: "Booker"}, view.Booker)
	assert.Equal(t, models.ItemRef{ID: env.item.ID, Name: "Drill"}, view.Item)
	assert.Equal(t, []string{events.EventBookingCreated}, env.events())
}

func TestAddBooking_Preconditions(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	hidden, err := env.items.CreateItem(ctx, env.owner.ID, models.Item{Name: "Saw", Description: "Hand saw", Available: false})
	require.NoError(t, err)
	env.resetEvents()

	start := testNow.Add(time.Hour)
	tests := []struct {
		name     string
		itemID   int64
		bookerID int64
		start    time.Time
		end      time.Time
		want     models.ErrorKind
	}{
		{"unknown booker", env.item.ID, 999, start, start.Add(time.Hour), models.KindUserNotFound},
		{"unknown booker wins over unknown item", 999, 999, start, start.Add(time.Hour), models.KindUserNotFound},
		{"unknown item", 999, env.booker.ID, start, start.Add(time.Hour), models.KindItemNotFound},
		{"end equals start", env.item.ID, env.booker.ID, start, start, models.KindEndBeforeOrEqualsStart},
		{"bad window wins over unknown booker", env.item.ID, 999, start, start, models.KindEndBeforeOrEqualsStart},
		{"bad window wins over unknown item", 999, env.booker.ID, start, start.Add(-time.Minute), models.KindEndBeforeOrEqualsStart},
		{"start in the past", env.item.ID, env.booker.ID, testNow.Add(-48 * time.Hour), testNow.Add(-47 * time.Hour), models.KindIllegalArgument},
		{"past window wins over unknown booker", env.item.ID, 999, testNow.Add(-time.Hour), testNow.Add(time.Hour), models.KindIllegalArgument},
		{"missing start", env.item.ID, env.booker.ID, time.Time{}, start, models.KindIllegalArgument},
		{"end before start", env.item.ID, env.booker.ID, start, start.Add(-time.Hour), models.KindEndBeforeOrEqualsStart},
		{"bad window wins over own item", env.item.ID, env.owner.ID, start, start, models.KindEndBeforeOrEqualsStart},
		{"own item", env.item.ID, env.owner.ID, start, start.Add(time.Hour), models.KindCantBookOwnedItem},
		{"own item wins over unavailable", hidden.ID, env.owner.ID, start, start.Add(time.Hour), models.KindCantBookOwnedItem},
		{"unavailable item", hidden.ID, env.booker.ID, start, start.Add(time.Hour), models.KindItemNotAvailableForBooking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := env.bookings.AddBooking(ctx, tt.itemID, tt.bookerID, tt.start, tt.end)
			assert.Nil(t, view)
			assertKind(t, err, tt.want)
		})
	}
	assert.Empty(t, env.events())
}

func TestAddBooking_StartAtNowIsAccepted(t *testing.T) {
	env := newTestEnv(t, "")

	view := env.book(t, env.booker.ID, 0, time.Hour)
	assert.Equal(t, testNow, view.Start)
}

func TestAddBooking_PastWindowCannotUnlockComments(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	_, err := env.bookings.AddBooking(ctx, env.item.ID, env.booker.ID, testNow.Add(-48*time.Hour), testNow.Add(-47*time.Hour))
	assertKind(t, err, models.KindIllegalArgument)

	_, err = env.items.AddComment(ctx, env.item.ID, env.booker.ID, "Used it yesterday")
	assertKind(t, err, models.KindCommenterDontHaveBooking)
}

func TestAddBooking_BackToBackWindowsAreAccepted(t *testing.T) {
	env := newTestEnv(t, "")
	env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
	env.book(t, env.booker.ID, 4*time.Hour, 5*time.Hour)

	env.book(t, env.other.ID, 2*time.Hour, 4*time.Hour)

	_, err := env.bookings.AddBooking(context.Background(), env.item.ID, env.other.ID,
		testNow.Add(2*time.Hour-time.Minute), testNow.Add(3*time.Hour))
	assertKind(t, err, models.KindTimeWindowOccupied)
}

func TestAddBooking_NestedRequestIsOccupied(t *testing.T) {
	env := newTestEnv(t, "")
	env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	_, err := env.bookings.AddBooking(context.Background(), env.item.ID, env.other.ID,
		testNow.Add(90*time.Minute), testNow.Add(105*time.Minute))
	assertKind(t, err, models.KindTimeWindowOccupied)
	assert.ErrorIs(t, err, models.ErrTimeWindowOccupied)
}

func TestAddBooking_AfterApprovedBookingIsAccepted(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	first := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
	_, err := env.bookings.SetApproval(ctx, first.ID, true, env.owner.ID)
	require.NoError(t, err)

	second := env.book(t, env.other.ID, 3*time.Hour, 4*time.Hour)
	assert.Equal(t, models.StatusWaiting, second.Status)
}

func TestAddBooking_RejectedBookingDoesNotBlock(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	first := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
	_, err := env.bookings.SetApproval(ctx, first.ID, false, env.owner.ID)
	require.NoError(t, err)

	env.book(t, env.other.ID, time.Hour, 2*time.Hour)
}

func TestAddBooking_OverlapAcrossTwoBookings(t *testing.T) {
	for _, boundary := range []string{models.ConflictBoundaryEnd, models.ConflictBoundaryStart} {
		t.Run(boundary, func(t *testing.T) {
			env := newTestEnv(t, boundary)
			env.book(t, env.booker.ID, 1*time.Hour, 3*time.Hour)
			env.book(t, env.booker.ID, 4*time.Hour, 6*time.Hour)

			_, err := env.bookings.AddBooking(context.Background(), env.item.ID, env.other.ID,
				testNow.Add(2*time.Hour), testNow.Add(5*time.Hour))
			assertKind(t, err, models.KindTimeWindowOccupied)
		})
	}
}

func TestAddBooking_StartBoundaryAcceptsNestedRequest(t *testing.T) {
	env := newTestEnv(t, models.ConflictBoundaryStart)
	env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	// совместимость со старым поведением: вложенный интервал проходит
	env.book(t, env.other.ID, 90*time.Minute, 105*time.Minute)
}

func TestAddBooking_PublishesCreatedEvent(t *testing.T) {
	env := newTestEnv(t, "")
	bus := new(mockEventBus)
	env.bookings.eventBus = bus

	bus.On("PublishJSON", events.EventBookingCreated, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.ItemID == env.item.ID && p.BookerID == env.booker.ID && p.OwnerID == env.owner.ID && p.Status == "WAITING"
	})).Return(errors.New("bus down")).Once()

	// ошибка публикации не ломает запрос
	view := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
	assert.NotZero(t, view.ID)
	bus.AssertExpectations(t)
}

func TestAddBooking_ConcurrentRequestsForSameWindow(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.bookings.AddBooking(ctx, env.item.ID, env.booker.ID, testNow.Add(time.Hour), testNow.Add(2*time.Hour))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, occupied int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		if errors.Is(err, models.ErrTimeWindowOccupied) {
			occupied++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, occupied)
}

func TestSetApproval(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	approvedBooking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
	rejectedBooking := env.book(t, env.booker.ID, 3*time.Hour, 4*time.Hour)

	t.Run("non owner", func(t *testing.T) {
		_, err := env.bookings.SetApproval(ctx, approvedBooking.ID, true, env.booker.ID)
		assertKind(t, err, models.KindWrongUserUpdatingBooking)
	})

	t.Run("missing booking", func(t *testing.T) {
		_, err := env.bookings.SetApproval(ctx, 999, true, env.owner.ID)
		assertKind(t, err, models.KindBookingNotFound)
	})

	t.Run("approve", func(t *testing.T) {
		view, err := env.bookings.SetApproval(ctx, approvedBooking.ID, true, env.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, view.Status)
	})

	t.Run("reject", func(t *testing.T) {
		view, err := env.bookings.SetApproval(ctx, rejectedBooking.ID, false, env.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, view.Status)
	})

	t.Run("second decision", func(t *testing.T) {
		for _, approved := range []bool{true, false} {
			_, err := env.bookings.SetApproval(ctx, approvedBooking.ID, approved, env.owner.ID)
			assertKind(t, err, models.KindApprovalAlreadySet)
		}
		view, err := env.bookings.GetBooking(ctx, approvedBooking.ID, env.owner.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, view.Status)
	})

	assert.Equal(t, []string{
		events.EventBookingCreated, events.EventBookingCreated,
		events.EventBookingApproved, events.EventBookingRejected,
	}, env.events())
}

func TestSetApproval_ConcurrentDecisions(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(approved bool) {
			defer wg.Done()
			_, err := env.bookings.SetApproval(ctx, booking.ID, approved, env.owner.ID)
			errs <- err
		}(i%2 == 0)
	}
	wg.Wait()
	close(errs)

	var ok, already int
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		if errors.Is(err, models.ErrApprovalAlreadySet) {
			already++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, already)
}

func TestGetBooking(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	for _, requester := range []int64{env.booker.ID, env.owner.ID} {
		view, err := env.bookings.GetBooking(ctx, booking.ID, requester)
		require.NoError(t, err)
		assert.Equal(t, booking.ID, view.ID)
	}

	_, err := env.bookings.GetBooking(ctx, booking.ID, env.other.ID)
	assertKind(t, err, models.KindCantViewUnrelatedBooking)

	_, err = env.bookings.GetBooking(ctx, 999, env.owner.ID)
	assertKind(t, err, models.KindBookingNotFound)
}

func TestListBookings(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	b1 := env.book(t, env.booker.ID, 1*time.Hour, 2*time.Hour)
	b2 := env.book(t, env.booker.ID, 3*time.Hour, 4*time.Hour)
	b3 := env.book(t, env.booker.ID, 5*time.Hour, 6*time.Hour)
	_, err := env.bookings.SetApproval(ctx, b2.ID, false, env.owner.ID)
	require.NoError(t, err)

	ids := func(views []models.BookingView) []int64 {
		out := make([]int64, 0, len(views))
		for _, v := range views {
			out = append(out, v.ID)
		}
		return out
	}

	t.Run("all by booker newest first", func(t *testing.T) {
		views, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.booker.ID})
		require.NoError(t, err)
		assert.Equal(t, []int64{b3.ID, b2.ID, b1.ID}, ids(views))
	})

	t.Run("offset 1 limit 1 returns the second", func(t *testing.T) {
		views, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.booker.ID, State: "ALL", Offset: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []int64{b2.ID}, ids(views))
	})

	t.Run("waiting by owner, token normalized", func(t *testing.T) {
		views, err := env.bookings.ListBookings(ctx, models.BookingFilter{OwnerID: env.owner.ID, State: " waiting "})
		require.NoError(t, err)
		assert.Equal(t, []int64{b3.ID, b1.ID}, ids(views))
		for _, v := range views {
			assert.Equal(t, models.StatusWaiting, v.Status)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		views, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.booker.ID, State: "REJECTED"})
		require.NoError(t, err)
		assert.Equal(t, []int64{b2.ID}, ids(views))
	})

	t.Run("owner sees nothing as booker", func(t *testing.T) {
		views, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.owner.ID})
		require.NoError(t, err)
		assert.Empty(t, views)
	})

	t.Run("unknown or display-only state", func(t *testing.T) {
		for _, state := range []string{"UNKNOWN", "APPROVED"} {
			_, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.booker.ID, State: state})
			assertKind(t, err, models.KindIllegalArgument)
			assert.EqualError(t, err, "Unknown state: UNSUPPORTED_STATUS")
		}
	})

	t.Run("bad pagination", func(t *testing.T) {
		_, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.booker.ID, Offset: -1})
		assertKind(t, err, models.KindIllegalArgument)
		_, err = env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: env.booker.ID, Limit: -1})
		assertKind(t, err, models.KindIllegalArgument)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := env.bookings.ListBookings(ctx, models.BookingFilter{BookerID: 999})
		assertKind(t, err, models.KindUserNotFound)
		_, err = env.bookings.ListBookings(ctx, models.BookingFilter{OwnerID: 999})
		assertKind(t, err, models.KindUserNotFound)
	})
}

func TestLastAndNext(t *testing.T) {
	t.Run("single future booking, no past", func(t *testing.T) {
		env := newTestEnv(t, "")
		booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

		last, next, err := env.bookings.LastAndNext(context.Background(), env.item, env.owner.ID)
		require.NoError(t, err)
		assert.Nil(t, last)
		require.NotNil(t, next)
		assert.Equal(t, models.ShortBookingView{ID: booking.ID, BookerID: env.booker.ID}, *next)
	})

	t.Run("non owner gets nothing", func(t *testing.T) {
		env := newTestEnv(t, "")
		env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

		for _, requester := range []int64{env.booker.ID, env.other.ID, 999} {
			last, next, err := env.bookings.LastAndNext(context.Background(), env.item, requester)
			require.NoError(t, err)
			assert.Nil(t, last)
			assert.Nil(t, next)
		}
	})

	t.Run("current booking is last", func(t *testing.T) {
		env := newTestEnv(t, "")
		current := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
		upcoming := env.book(t, env.other.ID, 3*time.Hour, 4*time.Hour)

		// часы сдвигаются внутрь первой брони
		env.bookings.now = func() time.Time { return testNow.Add(90 * time.Minute) }

		last, next, err := env.bookings.LastAndNext(context.Background(), env.item, env.owner.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		require.NotNil(t, next)
		assert.Equal(t, current.ID, last.ID)
		assert.Equal(t, upcoming.ID, next.ID)
	})

	t.Run("past booking looked up separately", func(t *testing.T) {
		env := newTestEnv(t, "")
		past := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)
		upcoming := env.book(t, env.other.ID, 5*time.Hour, 6*time.Hour)

		env.bookings.now = func() time.Time { return testNow.Add(3 * time.Hour) }

		last, next, err := env.bookings.LastAndNext(context.Background(), env.item, env.owner.ID)
		require.NoError(t, err)
		require.NotNil(t, last)
		require.NotNil(t, next)
		assert.Equal(t, past.ID, last.ID)
		assert.Equal(t, upcoming.ID, next.ID)
	})
}

func TestHasStartedApprovedBooking(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	ok, err := env.bookings.HasStartedApprovedBooking(ctx, env.booker.ID, env.item.ID)
	require.NoError(t, err)
	assert.False(t, ok, "waiting and not started")

	_, err = env.bookings.SetApproval(ctx, booking.ID, true, env.owner.ID)
	require.NoError(t, err)
	ok, err = env.bookings.HasStartedApprovedBooking(ctx, env.booker.ID, env.item.ID)
	require.NoError(t, err)
	assert.False(t, ok, "approved but not started")

	env.bookings.now = func() time.Time { return testNow.Add(90 * time.Minute) }
	ok, err = env.bookings.HasStartedApprovedBooking(ctx, env.booker.ID, env.item.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBookingEventPayloadIsJSON(t *testing.T) {
	env := newTestEnv(t, "")

	var payload events.BookingEventPayload
	env.bus.Subscribe(events.EventBookingCreated, func(ev *events.Event) error {
		return json.Unmarshal(ev.Payload, &payload)
	})
	booking := env.book(t, env.booker.ID, time.Hour, 2*time.Hour)

	assert.Equal(t, booking.ID, payload.BookingID)
	assert.Equal(t, env.owner.ID, payload.OwnerID)
	assert.True(t, payload.Start.Equal(testNow.Add(time.Hour)))
}
