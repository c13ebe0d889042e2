package service

import (
	"context"
	"fmt"
	"strings"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

const minPasscodeLength = 4

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	settings.HasLockPasscode = settings.LockPasscode != ""
	return settings, nil
}

// UpdateSettings applies a partial update. An empty passcode clears it.
func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Settings{}, err
	}
	current, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}

	if v := trimPtr(req.StoreName); v != nil {
		if *v == "" {
			return domain.Settings{}, store.ErrInvalidTransaction
		}
		current.StoreName = *v
	}
	for target, value := range map[*string]*string{
		&current.LogoPath:  req.LogoPath,
		&current.Phone:     req.Phone,
		&current.Address:   req.Address,
		&current.WhatsApp:  req.WhatsApp,
		&current.Instagram: req.Instagram,
		&current.TikTok:    req.TikTok,
	} {
		if v := trimPtr(value); v != nil {
			*target = *v
		}
	}
	if req.SizesEnabled != nil {
		current.SizesEnabled = *req.SizesEnabled
	}
	if req.BarcodeShowsStoreName != nil {
		current.BarcodeShowsStoreName = *req.BarcodeShowsStoreName
	}
	passcodeChanged := false
	if v := trimPtr(req.LockPasscode); v != nil {
		switch {
		case *v == "":
			current.LockPasscode = ""
		case len([]rune(*v)) < minPasscodeLength:
			return domain.Settings{}, fmt.Errorf("%w: passcode must be at least %d characters", store.ErrInvalidTransaction, minPasscodeLength)
		default:
			hash, err := hashPassword(*v)
			if err != nil {
				return domain.Settings{}, fmt.Errorf("hash passcode: %w", err)
			}
			current.LockPasscode = hash
		}
		passcodeChanged = true
	}

	saved, err := s.repo.SaveSettings(ctx, current)
	if err != nil {
		return domain.Settings{}, err
	}
	saved.HasLockPasscode = saved.LockPasscode != ""
	s.logAudit(ctx, "settings_update", "settings", "1", fmt.Sprintf("store_name=%s,sizes=%t,passcode_changed=%t", saved.StoreName, saved.SizesEnabled, passcodeChanged))
	return saved, nil
}

// VerifyUnlock accepts the store lock passcode or the user's own login password.
func (s *Service) VerifyUnlock(ctx context.Context, username string, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrInvalidCredentials
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return err
	}
	if settings.LockPasscode != "" && verifyPassword(settings.LockPasscode, secret) {
		return nil
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return ErrInvalidCredentials
	}
	if !verifyPassword(user.Password, secret) {
		return ErrInvalidCredentials
	}
	return nil
}

// ResetDatabase wipes business data and re-seeds defaults. Users, sizes,
// colors and audit logs are kept.
func (s *Service) ResetDatabase(ctx context.Context) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.Reset(ctx); err != nil {
		return err
	}
	s.logAudit(ctx, "database_reset", "database", "all", "")
	s.invalidateDebt(ctx)
	s.stockChanged(ctx)
	return nil
}
