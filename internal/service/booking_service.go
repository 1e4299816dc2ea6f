package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shareit/internal/config"
	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/metrics"
	"shareit/internal/models"
	"shareit/internal/schedule"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.Repository
	locker   domain.ItemLocker
	eventBus domain.EventPublisher
	boundary schedule.Boundary
	lockTTL  time.Duration
	pageSize int
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	locker domain.ItemLocker,
	eventBus domain.EventPublisher,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) (*BookingService, error) {
	boundary, err := schedule.ParseBoundary(cfg.ConflictBoundary)
	if err != nil {
		return nil, err
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = models.DefaultLockTTL
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = models.DefaultPageSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &BookingService{
		repo:     repo,
		locker:   locker,
		eventBus: eventBus,
		boundary: boundary,
		lockTTL:  cfg.LockTTL,
		pageSize: cfg.DefaultPageSize,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}, nil
}

// AddBooking reserves [start, end) of the item for the booker. Checks run in a
// fixed order and the first failure is returned: the window itself, then the
// booker and the item, then the booking rules. The free-window test and the
// insert happen under the item lock and inside one transaction.
func (s *BookingService) AddBooking(ctx context.Context, itemID, bookerID int64, start, end time.Time) (*models.BookingView, error) {
	defer metrics.ObserveReserve(time.Now())

	if start.IsZero() || end.IsZero() {
		return nil, s.rejected(models.NewError(models.KindIllegalArgument, "booking start and end are required"))
	}
	if !end.After(start) {
		return nil, s.rejected(models.NewError(models.KindEndBeforeOrEqualsStart,
			"booking end %s is not after start %s", end.Format(time.RFC3339), start.Format(time.RFC3339)))
	}
	// start == now допустим, прошлое нет
	if now := s.now(); start.Before(now) {
		return nil, s.rejected(models.NewError(models.KindIllegalArgument,
			"booking start %s is in the past", start.Format(time.RFC3339)))
	}

	booker, err := s.getUser(ctx, bookerID)
	if err != nil {
		return nil, s.rejected(err)
	}
	item, err := s.getItem(ctx, itemID)
	if err != nil {
		return nil, s.rejected(err)
	}

	if item.OwnerID == bookerID {
		return nil, s.rejected(models.NewError(models.KindCantBookOwnedItem,
			"user %d owns item %d and cannot book it", bookerID, itemID))
	}
	if !item.Available {
		return nil, s.rejected(models.NewError(models.KindItemNotAvailableForBooking,
			"item %d is not available for booking", itemID))
	}

	unlock, err := s.lockItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := s.now()
	booking := models.Booking{
		ItemID:   itemID,
		BookerID: bookerID,
		Start:    start.UTC(),
		End:      end.UTC(),
	}
	err = s.repo.CreateBookingChecked(ctx, &booking, now, func(active []models.Booking) error {
		if !schedule.IsWindowFree(active, booking.Start, booking.End, now, s.boundary) {
			return models.NewError(models.KindTimeWindowOccupied,
				"item %d is already booked within %s - %s",
				itemID, booking.Start.Format(time.RFC3339), booking.End.Format(time.RFC3339))
		}
		return nil
	})
	if err != nil {
		return nil, s.rejected(err)
	}

	metrics.IncBookingCreated()
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("item_id", itemID).
		Int64("booker_id", bookerID).
		Msg("booking created")
	s.publishEvent(events.EventBookingCreated, booking, *item, bookerID)

	view := models.NewBookingView(booking, *booker, *item, schedule.DetermineStatus(booking))
	return &view, nil
}

// GetBooking is visible to the booker and to the item owner only.
func (s *BookingService) GetBooking(ctx context.Context, id, requesterID int64) (*models.BookingView, error) {
	booking, item, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if requesterID != booking.BookerID && requesterID != item.OwnerID {
		return nil, models.NewError(models.KindCantViewUnrelatedBooking,
			"user %d is neither the booker nor the owner of booking %d", requesterID, id)
	}
	return s.view(ctx, *booking, *item)
}

// SetApproval records the owner's decision. Only one decision per booking is
// ever accepted; the write is a compare-and-set on an unset approval.
func (s *BookingService) SetApproval(ctx context.Context, id int64, approved bool, requesterID int64) (*models.BookingView, error) {
	booking, item, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != requesterID {
		return nil, models.NewError(models.KindWrongUserUpdatingBooking,
			"user %d does not own item %d of booking %d", requesterID, item.ID, id)
	}
	if booking.Approval() != models.ApprovalUnset {
		return nil, approvalAlreadySet(id)
	}

	ok, err := s.repo.SetApprovalIfUnset(ctx, id, approved)
	if err != nil {
		return nil, err
	}
	if !ok {
		// кто-то успел принять решение между чтением и записью
		return nil, approvalAlreadySet(id)
	}

	booking.Approved = models.BoolPtr(approved)
	metrics.IncBookingDecision(approved)
	eventType := events.EventBookingRejected
	if approved {
		eventType = events.EventBookingApproved
	}
	s.publishEvent(eventType, *booking, *item, requesterID)

	return s.view(ctx, *booking, *item)
}

// ListBookings returns the booker's or the owner's bookings matching
// filter.State, newest start first.
func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.BookingView, error) {
	bookings, err := s.ListBookingRecords(ctx, filter)
	if err != nil {
		return nil, err
	}

	users := make(map[int64]models.User)
	items := make(map[int64]models.Item)
	views := make([]models.BookingView, 0, len(bookings))
	for _, b := range bookings {
		booker, ok := users[b.BookerID]
		if !ok {
			u, err := s.getUser(ctx, b.BookerID)
			if err != nil {
				return nil, err
			}
			booker = *u
			users[b.BookerID] = booker
		}
		item, ok := items[b.ItemID]
		if !ok {
			it, err := s.getItem(ctx, b.ItemID)
			if err != nil {
				return nil, err
			}
			item = *it
			items[b.ItemID] = item
		}
		views = append(views, models.NewBookingView(b, booker, item, schedule.DetermineStatus(b)))
	}
	return views, nil
}

// ListBookingRecords validates the filter and runs the query without building views.
func (s *BookingService) ListBookingRecords(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	status, err := schedule.ParseStatus(filter.State)
	if err != nil {
		return nil, err
	}
	if filter.Offset < 0 {
		return nil, models.NewError(models.KindIllegalArgument, "from must not be negative, got %d", filter.Offset)
	}
	if filter.Limit < 0 {
		return nil, models.NewError(models.KindIllegalArgument, "size must be positive, got %d", filter.Limit)
	}
	if filter.Limit == 0 {
		filter.Limit = s.pageSize
	}

	for _, userID := range []int64{filter.BookerID, filter.OwnerID} {
		if userID == 0 {
			continue
		}
		if err := s.ensureUser(ctx, userID); err != nil {
			return nil, err
		}
	}

	return s.repo.QueryBookings(ctx, filter, status, s.now())
}

// LastAndNext returns what the item owner sees as the last and the next
// booking. Anyone else gets (nil, nil).
func (s *BookingService) LastAndNext(ctx context.Context, item models.Item, requesterID int64) (*models.ShortBookingView, *models.ShortBookingView, error) {
	last, next, err := schedule.SelectLastAndNext(ctx, s.repo, item, requesterID, s.now())
	if err != nil {
		return nil, nil, err
	}
	return models.NewShortBookingView(last), models.NewShortBookingView(next), nil
}

func (s *BookingService) HasStartedApprovedBooking(ctx context.Context, bookerID, itemID int64) (bool, error) {
	return s.repo.HasStartedApprovedBooking(ctx, bookerID, itemID, s.now())
}

func (s *BookingService) loadBooking(ctx context.Context, id int64) (*models.Booking, *models.Item, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, models.NewError(models.KindBookingNotFound, "booking %d not found", id)
	}
	if err != nil {
		return nil, nil, err
	}
	item, err := s.getItem(ctx, booking.ItemID)
	if err != nil {
		return nil, nil, err
	}
	return booking, item, nil
}

func (s *BookingService) view(ctx context.Context, booking models.Booking, item models.Item) (*models.BookingView, error) {
	booker, err := s.getUser(ctx, booking.BookerID)
	if err != nil {
		return nil, err
	}
	view := models.NewBookingView(booking, *booker, item, schedule.DetermineStatus(booking))
	return &view, nil
}

func (s *BookingService) getUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, userNotFound(id)
	}
	return user, err
}

func (s *BookingService) ensureUser(ctx context.Context, id int64) error {
	exists, err := s.repo.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return userNotFound(id)
	}
	return nil
}

func (s *BookingService) getItem(ctx context.Context, id int64) (*models.Item, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, itemNotFound(id)
	}
	return item, err
}

func (s *BookingService) lockItem(ctx context.Context, itemID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	unlock, err := s.locker.LockItem(ctx, itemID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("lock item %d: %w", itemID, err)
	}
	return func() {
		// ctx запроса может быть уже отменён, а блокировку отпустить нужно
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := unlock(releaseCtx); err != nil {
			s.logger.Warn().Err(err).Int64("item_id", itemID).Msg("release item lock")
		}
	}, nil
}

// rejected counts domain rejections by kind and passes err through.
func (s *BookingService) rejected(err error) error {
	if kind, ok := models.KindOf(err); ok {
		metrics.IncBookingRejected(string(kind))
	}
	return err
}

func (s *BookingService) publishEvent(eventType string, booking models.Booking, item models.Item, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		ItemID:      booking.ItemID,
		BookerID:    booking.BookerID,
		OwnerID:     item.OwnerID,
		Start:       booking.Start,
		End:         booking.End,
		Status:      schedule.DetermineStatus(booking).String(),
		ChangedByID: changedByID,
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func approvalAlreadySet(id int64) error {
	return models.NewError(models.KindApprovalAlreadySet, "approval of booking %d is already set", id)
}

func userNotFound(id int64) error {
	return models.NewError(models.KindUserNotFound, "user %d not found", id)
}

func itemNotFound(id int64) error {
	return models.NewError(models.KindItemNotFound, "item %d not found", id)
}

var _ domain.BookingService = (*BookingService)(nil)
