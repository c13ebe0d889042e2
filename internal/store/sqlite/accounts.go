package sqlite

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

// Settings

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	db := s.db.WithContext(ctx)
	var row settingsRow
	err := db.First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = settingsRowFrom(domain.DefaultSettings())
		err = db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) SaveSettings(ctx context.Context, st domain.Settings) (domain.Settings, error) {
	row := settingsRowFrom(st)
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return domain.Settings{}, err
	}
	return row.toDomain(), nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleWorker
	}

	var created domain.UserAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireUsernameFree(tx, user.Username, 0); err != nil {
			return err
		}
		row := userRowFrom(user)
		row.ID = 0
		row.CreatedAt = time.Time{}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		created = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]domain.UserAccount, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return s.getUserWhere(ctx, "username = ?", strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg any) (*domain.UserAccount, error) {
	var row userRow
	if err := s.db.WithContext(ctx).Where(where, arg).First(&row).Error; err != nil {
		return nil, mapError(err)
	}
	user := row.toDomain()
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))

	var updated domain.UserAccount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, user.ID).Error; err != nil {
			return mapError(err)
		}
		if err := requireUsernameFree(tx, user.Username, user.ID); err != nil {
			return err
		}
		wasAdmin := existing.Active && existing.Role == domain.RoleAdmin
		staysAdmin := user.Active && user.Role == domain.RoleAdmin
		if wasAdmin && !staysAdmin {
			if err := requireOtherAdmin(tx, user.ID); err != nil {
				return err
			}
		}
		row := userRowFrom(user)
		row.CreatedAt = existing.CreatedAt
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		updated = row.toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&existing, id).Error; err != nil {
			return mapError(err)
		}
		if existing.Active && existing.Role == domain.RoleAdmin {
			if err := requireOtherAdmin(tx, id); err != nil {
				return err
			}
		}
		return tx.Delete(&userRow{}, id).Error
	})
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("username = ?", username).Update("password", password)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func requireUsernameFree(tx *gorm.DB, username string, exceptID int64) error {
	err := requireUnused(tx, &userRow{}, "username = ? AND id <> ?", username, exceptID)
	if errors.Is(err, store.ErrInUse) {
		return store.ErrDuplicate
	}
	return err
}

func requireOtherAdmin(tx *gorm.DB, exceptID int64) error {
	var n int64
	err := tx.Model(&userRow{}).
		Where("role = ? AND active = ? AND id <> ?", domain.RoleAdmin, true, exceptID).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrLastAdmin
	}
	return nil
}

// Audit

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&auditRow{
		ActorUsername: entry.ActorUsername,
		ActorRole:     entry.ActorRole,
		Action:        entry.Action,
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		Detail:        entry.Detail,
		CreatedAt:     entry.CreatedAt.UTC(),
	}).Error
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	q := s.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from.UTC(), to.UTC()).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []auditRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.AuditLog, 0, len(rows))
	for _, r := range rows {
		result = append(result, domain.AuditLog{
			ID:            r.ID,
			ActorUsername: r.ActorUsername,
			ActorRole:     r.ActorRole,
			Action:        r.Action,
			EntityType:    r.EntityType,
			EntityID:      r.EntityID,
			Detail:        r.Detail,
			CreatedAt:     r.CreatedAt.UTC(),
		})
	}
	return result, nil
}

// Reset

func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&returnLineRow{}, &paymentRow{}, &returnRow{}, &saleLineRow{}, &saleRow{}, &customerRow{},
			&movementRow{}, &stockRow{}, &productRow{}, &categoryRow{}, &settingsRow{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		for _, name := range store.ResetCategories {
			if err := tx.Create(&categoryRow{Name: name}).Error; err != nil {
				return err
			}
		}
		row := settingsRowFrom(domain.DefaultSettings())
		return tx.Create(&row).Error
	})
}
