package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

const (
	minUsernameLength = 3
	minPasswordLength = 6
)

// Authenticate checks credentials and upgrades a legacy plain-text password
// to a bcrypt hash on the first successful login.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.UserAccount, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return domain.UserAccount{}, ErrInvalidCredentials
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.UserAccount{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.UserAccount{}, err
	}

	if !isPasswordHash(user.Password) {
		if user.Password == "" || user.Password != password {
			return domain.UserAccount{}, ErrInvalidCredentials
		}
		if hashed, err := hashPassword(password); err == nil {
			if err := s.repo.UpdateUserPassword(ctx, username, hashed); err != nil {
				log.Printf("[service] WARN: failed to upgrade legacy password user=%s: %v", username, err)
			}
			user.Password = hashed
		}
	} else if !verifyPassword(user.Password, password) {
		return domain.UserAccount{}, ErrInvalidCredentials
	}

	if !user.Active {
		return domain.UserAccount{}, ErrInactiveAccount
	}
	return *user, nil
}

// ResolveActor reloads the account behind a token so role changes and
// deactivation take effect before the token expires.
func (s *Service) ResolveActor(ctx context.Context, username string) (domain.Actor, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Actor{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Actor{}, err
	}
	if !user.Active {
		return domain.Actor{}, ErrInactiveAccount
	}
	return domain.Actor{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	accounts, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, a.Public())
	}
	return users, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return domain.User{}, err
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role == "" {
		role = domain.RoleWorker
	}
	if !domain.IsRole(role) {
		return domain.User{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidTransaction, role)
	}
	hash, err := newPasswordHash(req.Password)
	if err != nil {
		return domain.User{}, err
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Username:  username,
		Password:  hash,
		Role:      role,
		Active:    true,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_create", "user", created.Username, "role="+created.Role)
	return created.Public(), nil
}

func (s *Service) UpdateUser(ctx context.Context, id int64, req domain.UserUpdateRequest) (domain.User, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.User{}, err
	}
	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	updated := *existing
	if v := trimPtr(req.FirstName); v != nil {
		updated.FirstName = *v
	}
	if v := trimPtr(req.LastName); v != nil {
		updated.LastName = *v
	}
	if req.Username != nil {
		if updated.Username, err = normalizeUsername(*req.Username); err != nil {
			return domain.User{}, err
		}
	}
	if req.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*req.Role))
		if !domain.IsRole(role) {
			return domain.User{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalidTransaction, role)
		}
		updated.Role = role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		if updated.Password, err = newPasswordHash(*req.Password); err != nil {
			return domain.User{}, err
		}
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}
	s.logAudit(ctx, "user_update", "user", saved.Username, fmt.Sprintf("role=%s,active=%t,password_changed=%t", saved.Role, saved.Active, req.Password != nil))
	return saved.Public(), nil
}

// DeleteUser returns the removed username so callers can end its session.
func (s *Service) DeleteUser(ctx context.Context, id int64) (string, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return "", err
	}
	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	if existing.Username == actor.Username {
		return "", fmt.Errorf("%w: cannot delete the signed-in account", store.ErrInUse)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return "", err
	}
	s.logAudit(ctx, "user_delete", "user", existing.Username, "")
	return existing.Username, nil
}

// ChangePassword lets a user replace their own password; admins use UpdateUser for others.
func (s *Service) ChangePassword(ctx context.Context, id int64, req domain.PasswordChangeRequest) error {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrForbidden
	}
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.Username != actor.Username {
		return ErrForbidden
	}
	if !verifyPassword(user.Password, req.OldPassword) {
		return ErrInvalidCredentials
	}
	hash, err := newPasswordHash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateUserPassword(ctx, user.Username, hash); err != nil {
		return err
	}
	s.logAudit(ctx, "password_change", "user", user.Username, "")
	return nil
}

func normalizeUsername(raw string) (string, error) {
	username := strings.ToLower(strings.TrimSpace(raw))
	if len([]rune(username)) < minUsernameLength {
		return "", fmt.Errorf("%w: username must be at least %d characters", store.ErrInvalidTransaction, minUsernameLength)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return "", fmt.Errorf("%w: username must not contain spaces", store.ErrInvalidTransaction)
	}
	return username, nil
}

func newPasswordHash(password string) (string, error) {
	if len(password) < minPasswordLength || strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: password must be at least %d characters", store.ErrInvalidTransaction, minPasswordLength)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
