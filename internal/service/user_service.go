package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/civil-registry-api/internal/models"
	"github.com/noah-isme/civil-registry-api/internal/repository"
	appErrors "github.com/noah-isme/civil-registry-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByBadge(ctx context.Context, badge string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error
	CountByRole(ctx context.Context, role models.UserRole) (int, error)
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email       string          `json:"email" validate:"required,email"`
	Password    string          `json:"password" validate:"required,min=6"`
	FullName    string          `json:"full_name" validate:"required"`
	Role        models.UserRole `json:"role" validate:"omitempty,oneof=admin vms_officer statistician clerk"`
	Department  string          `json:"department"`
	Region      string          `json:"region"`
	Zone        string          `json:"zone"`
	Woreda      string          `json:"woreda"`
	Kebele      string          `json:"kebele"`
	Phone       string          `json:"phone" validate:"omitempty,phone_et"`
	BadgeNumber string          `json:"badge_number"`
	OfficeName  string          `json:"office_name"`
	Permissions map[string]bool `json:"permissions"`
}

// UpdateUserRequest payload for updating users. Nil fields are left untouched.
type UpdateUserRequest struct {
	FullName    *string          `json:"full_name" validate:"omitempty,min=1"`
	Role        *models.UserRole `json:"role" validate:"omitempty,oneof=admin vms_officer statistician clerk"`
	Department  *string          `json:"department"`
	Region      *string          `json:"region"`
	Zone        *string          `json:"zone"`
	Woreda      *string          `json:"woreda"`
	Kebele      *string          `json:"kebele"`
	Phone       *string          `json:"phone" validate:"omitempty,phone_et"`
	BadgeNumber *string          `json:"badge_number"`
	OfficeName  *string          `json:"office_name"`
	Permissions map[string]bool  `json:"permissions"`
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, validator: RegisterValidations(validate), logger: logger, now: time.Now}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	filter.Page, filter.PerPage = normalizePage(filter.Page, filter.PerPage)
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, models.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Get returns a user by ID. Non admins may only read themselves.
func (s *UserService) Get(ctx context.Context, actor models.Actor, id string) (*models.User, error) {
	if actor.ID != id && !actor.HasRole(models.RoleAdmin) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "access denied")
	}
	return s.load(ctx, id)
}

// Create adds a new user. Email and badge number must be unique.
func (s *UserService) Create(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	badge := strings.TrimSpace(req.BadgeNumber)

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, appErrors.Internal(err, "failed to check email uniqueness")
	}
	if badge != "" {
		if _, err := s.repo.FindByBadge(ctx, badge); err == nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, "badge number already registered")
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Internal(err, "failed to check badge number uniqueness")
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	role := req.Role
	if role == "" {
		role = models.RoleClerk
	}
	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(passwordHash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
		Department:   req.Department,
		Region:       req.Region,
		Zone:         req.Zone,
		Woreda:       req.Woreda,
		Kebele:       req.Kebele,
		Phone:        req.Phone,
		BadgeNumber:  badge,
		OfficeName:   req.OfficeName,
		Active:       true,
		Permissions:  req.Permissions,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, userWriteError(err, "failed to create user")
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update modifies the user profile, jurisdiction and permissions.
func (s *UserService) Update(ctx context.Context, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.BadgeNumber != nil {
		badge := strings.TrimSpace(*req.BadgeNumber)
		if badge != "" && badge != user.BadgeNumber {
			if other, err := s.repo.FindByBadge(ctx, badge); err == nil && other.ID != user.ID {
				return nil, appErrors.Clone(appErrors.ErrConflict, "badge number already registered")
			} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, appErrors.Internal(err, "failed to check badge number uniqueness")
			}
		}
		user.BadgeNumber = badge
	}
	assign := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	assign(&user.FullName, req.FullName)
	assign(&user.Department, req.Department)
	assign(&user.Region, req.Region)
	assign(&user.Zone, req.Zone)
	assign(&user.Woreda, req.Woreda)
	assign(&user.Kebele, req.Kebele)
	assign(&user.Phone, req.Phone)
	assign(&user.OfficeName, req.OfficeName)
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.Permissions != nil {
		user.Permissions = req.Permissions
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, userWriteError(err, "failed to update user")
	}
	return user, nil
}

// SetActive activates or deactivates a user. Users are never hard deleted.
func (s *UserService) SetActive(ctx context.Context, actor models.Actor, id string, active bool) (*models.User, error) {
	if actor.ID == id && !active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot deactivate your own account")
	}
	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := s.repo.SetActive(ctx, id, active, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to update user status")
	}
	user.Active = active
	user.UpdatedAt = now
	s.logger.Info("user status changed", zap.String("user_id", id), zap.Bool("active", active), zap.String("actor_id", actor.ID))
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator when no admin exists yet.
// It reports whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password, fullName string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}
	count, err := s.repo.CountByRole(ctx, models.RoleAdmin)
	if err != nil {
		return false, appErrors.Internal(err, "failed to count administrators")
	}
	if count > 0 {
		return false, nil
	}
	if fullName == "" {
		fullName = "System Administrator"
	}
	if _, err := s.Create(ctx, CreateUserRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
		Role:     models.RoleAdmin,
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

// userWriteError maps a unique index violation to a conflict naming the field.
func userWriteError(err error, message string) error {
	var dup *repository.DuplicateKeyError
	if errors.As(err, &dup) {
		switch dup.Field {
		case "email":
			return appErrors.Clone(appErrors.ErrConflict, "email already registered")
		case "badge_number":
			return appErrors.Clone(appErrors.ErrConflict, "badge number already registered")
		}
		return appErrors.Clone(appErrors.ErrConflict, "user already exists")
	}
	return appErrors.Internal(err, message)
}
