package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// UserRepository provides document access for user management.
type UserRepository struct {
	store DocumentStore
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(store DocumentStore) *UserRepository {
	return &UserRepository{store: store}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, Eq{Field: "email", Value: strings.ToLower(strings.TrimSpace(email))}, "find user by email")
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, ByID(id), "find user by id")
}

// FindByBadge returns a user by badge number.
func (r *UserRepository) FindByBadge(ctx context.Context, badge string) (*models.User, error) {
	return r.findOne(ctx, Eq{Field: "badge_number", Value: badge}, "find user by badge")
}

// Create inserts a new user. Unique violations surface as *DuplicateKeyError.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.store.InsertOne(ctx, CollectionUsers, userToDocument(user)); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update overwrites the mutable profile fields of a user.
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	doc := userToDocument(user)
	delete(doc, models.FieldID)
	delete(doc, "password_hash")
	delete(doc, "created_at")
	delete(doc, "last_login")
	matched, err := r.store.UpdateOne(ctx, CollectionUsers, ByID(user.ID), doc)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("update user: %w", err)
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

// UpdateLastLogin updates the last_login timestamp for a user.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return r.set(ctx, id, models.Document{"last_login": ts, "updated_at": ts}, "update last login")
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return r.set(ctx, id, models.Document{"password_hash": passwordHash, "updated_at": updatedAt}, "update password")
}

// SetActive toggles the active flag.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool, updatedAt time.Time) error {
	return r.set(ctx, id, models.Document{"is_active": active, "updated_at": updatedAt}, "update user status")
}

// List returns users based on filters with total count.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var conditions []Filter
	if filter.Role != nil {
		conditions = append(conditions, Eq{Field: "role", Value: string(*filter.Role)})
	}
	if filter.Active != nil {
		conditions = append(conditions, Eq{Field: "is_active", Value: *filter.Active})
	}
	if filter.Region != "" {
		conditions = append(conditions, Eq{Field: "region", Value: filter.Region})
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conditions = append(conditions, Or{
			Contains{Field: "full_name", Substring: search},
			Contains{Field: "email", Substring: search},
			Contains{Field: "badge_number", Substring: search},
		})
	}
	query := AllOf(conditions...)

	total, err := r.store.Count(ctx, CollectionUsers, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	docs, err := r.store.Find(ctx, CollectionUsers, query, FindOptions{
		Sort:  []Sort{{Field: "created_at", Desc: true}},
		Skip:  (page - 1) * perPage,
		Limit: perPage,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	users := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, *userFromDocument(doc))
	}
	return users, total, nil
}

// CountByRole counts users holding role.
func (r *UserRepository) CountByRole(ctx context.Context, role models.UserRole) (int, error) {
	total, err := r.store.Count(ctx, CollectionUsers, Eq{Field: "role", Value: string(role)})
	if err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return total, nil
}

// NamesByID resolves full names for the given user ids. Unknown ids are omitted.
func (r *UserRepository) NamesByID(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	seen := make(map[string]struct{}, len(ids))
	or := make(Or, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		or = append(or, ByID(id))
	}
	docs, err := r.store.Find(ctx, CollectionUsers, or, FindOptions{})
	if err != nil {
		return nil, fmt.Errorf("resolve user names: %w", err)
	}
	for _, doc := range docs {
		names[doc.ID()] = doc.String("full_name")
	}
	return names, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter Filter, op string) (*models.User, error) {
	doc, err := r.store.FindOne(ctx, CollectionUsers, filter)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return userFromDocument(doc), nil
}

func (r *UserRepository) set(ctx context.Context, id string, set models.Document, op string) error {
	matched, err := r.store.UpdateOne(ctx, CollectionUsers, ByID(id), set)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !matched {
		return ErrNotFound
	}
	return nil
}

func userToDocument(u *models.User) models.Document {
	doc := models.Document{
		models.FieldID:  u.ID,
		"email":         strings.ToLower(strings.TrimSpace(u.Email)),
		"password_hash": u.PasswordHash,
		"full_name":     u.FullName,
		"role":          string(u.Role),
		"is_active":     u.Active,
		"created_at":    u.CreatedAt,
		"updated_at":    u.UpdatedAt,
	}
	optional := map[string]string{
		"department":   u.Department,
		"region":       u.Region,
		"zone":         u.Zone,
		"woreda":       u.Woreda,
		"kebele":       u.Kebele,
		"phone":        u.Phone,
		"badge_number": u.BadgeNumber,
		"office_name":  u.OfficeName,
	}
	for key, value := range optional {
		if value != "" {
			doc[key] = value
		} else {
			doc[key] = nil
		}
	}
	if len(u.Permissions) > 0 {
		perms := make(map[string]interface{}, len(u.Permissions))
		for k, v := range u.Permissions {
			perms[k] = v
		}
		doc["permissions"] = perms
	}
	if u.LastLogin != nil {
		doc["last_login"] = *u.LastLogin
	}
	return doc
}

func userFromDocument(doc models.Document) *models.User {
	u := &models.User{
		ID:           doc.ID(),
		Email:        doc.String("email"),
		PasswordHash: doc.String("password_hash"),
		FullName:     doc.String("full_name"),
		Role:         models.UserRole(doc.String("role")),
		Department:   doc.String("department"),
		Region:       doc.String("region"),
		Zone:         doc.String("zone"),
		Woreda:       doc.String("woreda"),
		Kebele:       doc.String("kebele"),
		Phone:        doc.String("phone"),
		BadgeNumber:  doc.String("badge_number"),
		OfficeName:   doc.String("office_name"),
	}
	if active, ok := doc["is_active"].(bool); ok {
		u.Active = active
	}
	if perms, ok := doc["permissions"].(map[string]interface{}); ok {
		u.Permissions = make(map[string]bool, len(perms))
		for k, v := range perms {
			if b, ok := v.(bool); ok {
				u.Permissions[k] = b
			}
		}
	}
	if ts, ok := doc.Time("last_login"); ok {
		u.LastLogin = &ts
	}
	if ts, ok := doc.Time("created_at"); ok {
		u.CreatedAt = ts
	}
	if ts, ok := doc.Time("updated_at"); ok {
		u.UpdatedAt = ts
	}
	return u
}
