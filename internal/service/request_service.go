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

// RequestService handles item requests: users describe an item they need,
// owners answer by listing an item with the request's id.
type RequestService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewRequestService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *RequestService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RequestService{
		repo:     repo,
		eventBus: eventBus,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

func (s *RequestService) CreateRequest(ctx context.Context, requesterID int64, description string) (*models.ItemRequestView, error) {
	if err := s.ensureUser(ctx, requesterID); err != nil {
		return nil, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, models.NewError(models.KindIllegalArgument, "request description must not be blank")
	}

	request := models.ItemRequest{
		RequesterID: requesterID,
		Description: description,
		CreatedAt:   s.now().Truncate(time.Millisecond),
	}
	if err := s.repo.CreateRequest(ctx, &request); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("request_id", request.ID).Int64("requester_id", requesterID).Msg("item request created")
	if s.eventBus != nil {
		payload := events.RequestEventPayload{RequestID: request.ID, RequesterID: requesterID}
		if err := s.eventBus.PublishJSON(events.EventRequestCreated, payload); err != nil {
			s.logger.Error().Err(err).Str("event_type", events.EventRequestCreated).Msg("publish event error")
		}
	}

	view := models.NewItemRequestView(request, nil)
	return &view, nil
}

// GetRequest is open to any existing user, not only the requester.
func (s *RequestService) GetRequest(ctx context.Context, id, requesterID int64) (*models.ItemRequestView, error) {
	if err := s.ensureUser(ctx, requesterID); err != nil {
		return nil, err
	}
	request, err := s.repo.GetRequestByID(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, requestNotFound(id)
	}
	if err != nil {
		return nil, err
	}

	views, err := s.views(ctx, []models.ItemRequest{*request})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListOwnRequests returns all of the user's requests, newest first.
func (s *RequestService) ListOwnRequests(ctx context.Context, requesterID int64) ([]models.ItemRequestView, error) {
	if err := s.ensureUser(ctx, requesterID); err != nil {
		return nil, err
	}
	requests, err := s.repo.GetRequestsByRequester(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, requests)
}

// ListOtherUsersRequests pages through everyone else's requests, newest
// first. Zero size means no limit.
func (s *RequestService) ListOtherUsersRequests(ctx context.Context, requesterID int64, from, size int) ([]models.ItemRequestView, error) {
	if from < 0 {
		return nil, models.NewError(models.KindIllegalArgument, "from must not be negative, got %d", from)
	}
	if size < 0 {
		return nil, models.NewError(models.KindIllegalArgument, "size must be positive, got %d", size)
	}
	if err := s.ensureUser(ctx, requesterID); err != nil {
		return nil, err
	}
	requests, err := s.repo.GetOtherUsersRequests(ctx, requesterID, from, size)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, requests)
}

func (s *RequestService) views(ctx context.Context, requests []models.ItemRequest) ([]models.ItemRequestView, error) {
	ids := make([]int64, 0, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ID)
	}
	items, err := s.repo.GetItemsByRequests(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]models.ItemRequestView, 0, len(requests))
	for _, r := range requests {
		views = append(views, models.NewItemRequestView(r, items[r.ID]))
	}
	return views, nil
}

func (s *RequestService) ensureUser(ctx context.Context, id int64) error {
	exists, err := s.repo.UserExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return userNotFound(id)
	}
	return nil
}

func requestNotFound(id int64) error {
	return models.NewError(models.KindRequestNotFound, "item request %d not found", id)
}

var _ domain.RequestService = (*RequestService)(nil)
