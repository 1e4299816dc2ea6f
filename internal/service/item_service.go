package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/events"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

type ItemService struct {
	repo     domain.Repository
	bookings domain.BookingService
	eventBus domain.EventPublisher
	pageSize int
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewItemService(
	repo domain.Repository,
	bookings domain.BookingService,
	eventBus domain.EventPublisher,
	pageSize int,
	logger *zerolog.Logger,
) *ItemService {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ItemService{
		repo:     repo,
		bookings: bookings,
		eventBus: eventBus,
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func (s *ItemService) CreateItem(ctx context.Context, ownerID int64, item models.Item) (*models.Item, error) {
	if err := s.ensureUser(ctx, ownerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(item.Name) == "" {
		return nil, models.NewError(models.KindIllegalArgument, "item name must not be blank")
	}
	if strings.TrimSpace(item.Description) == "" {
		return nil, models.NewError(models.KindIllegalArgument, "item description must not be blank")
	}
	if item.RequestID != nil {
		if _, err := s.repo.GetRequestByID(ctx, *item.RequestID); err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, requestNotFound(*item.RequestID)
			}
			return nil, err
		}
	}

	item.ID = 0
	item.OwnerID = ownerID
	if err := s.repo.CreateItem(ctx, &item); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("item_id", item.ID).Int64("owner_id", ownerID).Msg("item created")
	s.publish(events.EventItemCreated, events.ItemEventPayload{ItemID: item.ID, OwnerID: ownerID, Available: item.Available})
	return &item, nil
}

func (s *ItemService) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	item, err := s.repo.GetItemByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, itemNotFound(id)
	}
	return item, err
}

func (s *ItemService) IsAvailable(ctx context.Context, itemID int64) (bool, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	return item.Available, nil
}

// GetItemView adds comments and, for the owner, the last and next bookings.
func (s *ItemService) GetItemView(ctx context.Context, itemID, requesterID int64) (*models.ItemView, error) {
	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	view, err := s.itemView(ctx, *item, requesterID)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *ItemService) ListOwnerItems(ctx context.Context, ownerID int64, from, size int) ([]models.ItemView, error) {
	size, err := s.page(from, size)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUser(ctx, ownerID); err != nil {
		return nil, err
	}

	items, err := s.repo.GetItemsByOwner(ctx, ownerID, from, size)
	if err != nil {
		return nil, err
	}
	views := make([]models.ItemView, 0, len(items))
	for _, item := range items {
		view, err := s.itemView(ctx, item, ownerID)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// UpdateItem applies a partial update. Only the owner may change an item.
func (s *ItemService) UpdateItem(ctx context.Context, itemID, ownerID int64, patch models.ItemPatch) (*models.Item, error) {
	if patch.IsEmpty() {
		return nil, models.NewError(models.KindIllegalArgument, "item patch has no fields set")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, models.NewError(models.KindIllegalArgument, "item name must not be blank")
	}
	if patch.Description != nil && strings.TrimSpace(*patch.Description) == "" {
		return nil, models.NewError(models.KindIllegalArgument, "item description must not be blank")
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != ownerID {
		return nil, models.NewError(models.KindWrongOwnerUpdatingItem,
			"user %d is not the owner of item %d", ownerID, itemID)
	}

	updated := patch.Apply(*item)
	if err := s.repo.UpdateItem(ctx, &updated); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, itemNotFound(itemID)
		}
		return nil, err
	}

	s.publish(events.EventItemUpdated, events.ItemEventPayload{ItemID: itemID, OwnerID: ownerID, Available: updated.Available})
	return &updated, nil
}

// SearchAvailable matches text against name and description of available
// items, case-insensitively. Blank text finds nothing.
func (s *ItemService) SearchAvailable(ctx context.Context, text string, from, size int) ([]models.Item, error) {
	size, err := s.page(from, size)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []models.Item{}, nil
	}
	items, err := s.repo.SearchAvailableItems(ctx, strings.TrimSpace(text), from, size)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.Item{}
	}
	return items, nil
}

// AddComment is allowed only after the author's approved booking of the item
// has started.
func (s *ItemService) AddComment(ctx context.Context, itemID, authorID int64, text string) (*models.CommentView, error) {
	author, err := s.repo.GetUserByID(ctx, authorID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, userNotFound(authorID)
	}
	if err != nil {
		return nil, err
	}
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.NewError(models.KindIllegalArgument, "comment text must not be blank")
	}

	ok, err := s.bookings.HasStartedApprovedBooking(ctx, authorID, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.NewError(models.KindCommenterDontHaveBooking,
			"user %d has no started approved booking of item %d", authorID, itemID)
	}

	comment := models.Comment{ItemID: itemID, AuthorID: authorID, Text: text, CreatedAt: s.now()}
	if err := s.repo.CreateComment(ctx, &comment); err != nil {
		return nil, err
	}

	s.publish(events.EventCommentAdded, events.CommentEventPayload{CommentID: comment.ID, ItemID: itemID, AuthorID: authorID})
	view := models.NewCommentView(comment, *author)
	return &view, nil
}

func (s *ItemService) itemView(ctx context.Context, item models.Item, requesterID int64) (models.ItemView, error) {
	last, next, err := s.bookings.LastAndNext(ctx, item, requesterID)
	if err != nil {
		return models.ItemView{}, err
	}
	comments, err := s.comments(ctx, item.ID)
	if err != nil {
		return models.ItemView{}, err
	}
	return models.NewItemView(item, last, next, comments), nil
}

func (s *ItemService) comments(ctx context.Context, itemID int64) ([]models.CommentView, error) {
	comments, err := s.repo.GetCommentsByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	authors := make(map[int64]models.User)
	views := make([]models.CommentView, 0, len(comments))
	for _, c := range comments {
		author, ok := authors[c.AuthorID]
		if !ok {
			u, err := s.repo.GetUserByID(ctx, c.AuthorID)
			if err != nil {
				return nil, err
			}
			author = *u
			authors[c.AuthorID] = author
		}
		views = append(views, models.NewCommentView(c, author))
	}
	return views, nil
}

func (s *ItemService) ensureUser(ctx context.Context, id int64) error {
	exists, err := s.repo.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return userNotFound(id)
	}
	return nil
}

// page validates from/size; zero size means the default page.
func (s *ItemService) page(from, size int) (int, error) {
	if from < 0 {
		return 0, models.NewError(models.KindIllegalArgument, "from must not be negative, got %d", from)
	}
	if size < 0 {
		return 0, models.NewError(models.KindIllegalArgument, "size must be positive, got %d", size)
	}
	if size == 0 {
		size = s.pageSize
	}
	return size, nil
}

func (s *ItemService) publish(eventType string, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

var _ domain.ItemService = (*ItemService)(nil)
