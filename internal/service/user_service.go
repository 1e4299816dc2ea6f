package service

import (
	"context"
	"errors"
	"strings"

	"shareit/internal/database"
	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.UserRepository
	logger *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, logger *zerolog.Logger) *UserService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &UserService{repo: repo, logger: logger}
}

func (s *UserService) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	if user.Name == "" {
		return nil, models.NewError(models.KindIllegalArgument, "user name must not be blank")
	}
	if err := validateEmail(user.Email); err != nil {
		return nil, err
	}

	user.ID = 0
	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return nil, mapUserError(err, user.ID, user.Email)
	}
	s.logger.Info().Int64("user_id", user.ID).Msg("user created")
	return &user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, mapUserError(err, id, "")
	}
	return user, nil
}

// UpdateUser changes name and/or email; nil fields are kept.
func (s *UserService) UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	if patch.IsEmpty() {
		return nil, models.NewError(models.KindIllegalArgument, "user patch has no fields set")
	}

	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, models.NewError(models.KindIllegalArgument, "user name must not be blank")
		}
		user.Name = name
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		user.Email = email
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, mapUserError(err, id, user.Email)
	}
	return user, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return mapUserError(err, id, "")
	}
	s.logger.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.repo.GetAllUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

func (s *UserService) UserExists(ctx context.Context, id int64) (bool, error) {
	return s.repo.UserExists(ctx, id)
}

func validateEmail(email string) error {
	if email == "" || !strings.Contains(email, "@") {
		return models.NewError(models.KindIllegalArgument, "invalid email %q", email)
	}
	return nil
}

func mapUserError(err error, id int64, email string) error {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return userNotFound(id)
	case errors.Is(err, database.ErrDuplicateEmail):
		return models.NewError(models.KindDuplicateEmail, "email %s is already taken", email)
	default:
		return err
	}
}

var _ domain.UserService = (*UserService)(nil)
