package store

import (
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"geyim/backend/internal/domain"
)

// Seed data shared by every repository implementation.
var (
	SeedCategories  = []string{"Şalvar", "Köynək", "Ayaqabı", "Kostyum", "Aksesuar"}
	ResetCategories = []string{"Köynək", "Şalvar", "Pencək", "Jilet", "Kurtka", "Palto", "Kostyum", "Aksesuar"}
	SeedSizes       = []string{"XS", "S", "M", "L", "XL", "XXL", "XXXL", "38", "40", "42", "44", "46", "48", "50", "52"}
	SeedColors      = []domain.Color{
		{Name: "Qara", HexCode: "#000000"},
		{Name: "Ağ", HexCode: "#FFFFFF"},
		{Name: "Qırmızı", HexCode: "#FF0000"},
		{Name: "Göy", HexCode: "#0000FF"},
		{Name: "Yaşıl", HexCode: "#008000"},
		{Name: "Sarı", HexCode: "#FFFF00"},
		{Name: "Narıncı", HexCode: "#FFA500"},
		{Name: "Bənövşəyi", HexCode: "#800080"},
		{Name: "Çəhrayı", HexCode: "#FFC0CB"},
		{Name: "Boz", HexCode: "#808080"},
	}
)

// SeedUser is a default account before its password is hashed.
type SeedUser struct {
	FirstName string
	LastName  string
	Username  string
	Password  string
	Role      string
}

// SeedAccounts hashes the default admin and worker accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_WORKER_PASSWORD with dev fallbacks.
func SeedAccounts(component string) ([]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	workerPwd := envOr("SEED_WORKER_PASSWORD", "worker123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_WORKER_PASSWORD") == "" {
		log.Printf("[%s] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_WORKER_PASSWORD to override.", component)
	}

	now := time.Now().UTC()
	seeds := []SeedUser{
		{FirstName: "Admin", Username: "admin", Password: adminPwd, Role: domain.RoleAdmin},
		{FirstName: "İşçi", Username: "worker", Password: workerPwd, Role: domain.RoleWorker},
	}
	accounts := make([]domain.UserAccount, 0, len(seeds))
	for _, u := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.Username, err)
		}
		accounts = append(accounts, domain.UserAccount{
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Username:  u.Username,
			Password:  string(hash),
			Role:      u.Role,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return accounts, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
