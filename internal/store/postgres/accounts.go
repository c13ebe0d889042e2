package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/store"
)

// Settings

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	defaults := domain.DefaultSettings()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, sizes_enabled) VALUES (1, $1, $2)
		ON CONFLICT (id) DO NOTHING
	`, defaults.StoreName, defaults.SizesEnabled); err != nil {
		return domain.Settings{}, err
	}

	var st domain.Settings
	err := s.db.QueryRowContext(ctx, `
		SELECT store_name, logo_path, phone, address, whatsapp, instagram, tiktok,
			sizes_enabled, lock_passcode, barcode_shows_store_name, updated_at
		FROM settings WHERE id = 1
	`).Scan(&st.StoreName, &st.LogoPath, &st.Phone, &st.Address, &st.WhatsApp, &st.Instagram, &st.TikTok,
		&st.SizesEnabled, &st.LockPasscode, &st.BarcodeShowsStoreName, &st.UpdatedAt)
	if err != nil {
		return domain.Settings{}, err
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func (s *Store) SaveSettings(ctx context.Context, st domain.Settings) (domain.Settings, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO settings (id, store_name, logo_path, phone, address, whatsapp, instagram, tiktok,
			sizes_enabled, lock_passcode, barcode_shows_store_name, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
		ON CONFLICT (id) DO UPDATE SET
			store_name = EXCLUDED.store_name,
			logo_path = EXCLUDED.logo_path,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			whatsapp = EXCLUDED.whatsapp,
			instagram = EXCLUDED.instagram,
			tiktok = EXCLUDED.tiktok,
			sizes_enabled = EXCLUDED.sizes_enabled,
			lock_passcode = EXCLUDED.lock_passcode,
			barcode_shows_store_name = EXCLUDED.barcode_shows_store_name,
			updated_at = now()
		RETURNING updated_at
	`, st.StoreName, st.LogoPath, st.Phone, st.Address, st.WhatsApp, st.Instagram, st.TikTok,
		st.SizesEnabled, st.LockPasscode, st.BarcodeShowsStoreName).Scan(&st.UpdatedAt)
	if err != nil {
		return domain.Settings{}, err
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

// Users

const userSelect = `
	SELECT id, first_name, last_name, username, password, role, active, created_at, updated_at
	FROM app_users
`

func scanUser(row rowScanner) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return nil, store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleWorker
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO app_users (first_name, last_name, username, password, role, active)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, created_at, updated_at
	`, user.FirstName, user.LastName, user.Username, user.Password, user.Role, user.Active).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, userSelect+`ORDER BY username ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.UserAccount, error) {
	return s.getUserWhere(ctx, `WHERE id = $1`, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return s.getUserWhere(ctx, `WHERE username = $1`, strings.ToLower(strings.TrimSpace(username)))
}

func (s *Store) getUserWhere(ctx context.Context, where string, arg any) (*domain.UserAccount, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, userSelect+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var role string
	var active bool
	err = tx.QueryRowContext(ctx, `SELECT role, active FROM app_users WHERE id = $1 FOR UPDATE`, user.ID).Scan(&role, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	wasAdmin := active && role == domain.RoleAdmin
	staysAdmin := user.Active && user.Role == domain.RoleAdmin
	if wasAdmin && !staysAdmin {
		if err := requireOtherAdmin(ctx, tx, user.ID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE app_users
		SET first_name = $2, last_name = $3, username = $4, password = $5, role = $6, active = $7, updated_at = now()
		WHERE id = $1
	`, user.ID, user.FirstName, user.LastName, user.Username, user.Password, user.Role, user.Active)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, user.ID)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var role string
	var active bool
	err = tx.QueryRowContext(ctx, `SELECT role, active FROM app_users WHERE id = $1 FOR UPDATE`, id).Scan(&role, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	if active && role == domain.RoleAdmin {
		if err := requireOtherAdmin(ctx, tx, id); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM app_users WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func requireOtherAdmin(ctx context.Context, tx *sql.Tx, exceptID int64) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM app_users
		WHERE role = 'admin' AND active = true AND id <> $1
		FOR UPDATE
	`, exceptID)
	if err != nil {
		return err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return store.ErrLastAdmin
	}
	return nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Audit

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.AuditLog, 0, 64)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		result = append(result, entry)
	}
	return result, rows.Err()
}

// Reset

func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{
		"return_lines", "debt_payments", "returns", "sale_lines", "sales", "customers",
		"stock_movements", "stock", "products", "categories", "settings",
	} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return err
		}
	}
	for _, name := range store.ResetCategories {
		if _, err := tx.ExecContext(ctx, `INSERT INTO categories (name) VALUES ($1)`, name); err != nil {
			return err
		}
	}
	defaults := domain.DefaultSettings()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (id, store_name, sizes_enabled) VALUES (1, $1, $2)
	`, defaults.StoreName, defaults.SizesEnabled); err != nil {
		return err
	}
	return tx.Commit()
}
