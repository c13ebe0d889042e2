package sqlite

import (
	"time"

	"geyim/backend/internal/domain"
)

type categoryRow struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	CreatedAt time.Time
}

func (categoryRow) TableName() string { return "categories" }

func (r categoryRow) toDomain() domain.Category {
	return domain.Category{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.UTC()}
}

type sizeRow struct {
	ID        int64  `gorm:"primaryKey"`
	Label     string `gorm:"not null"`
	CreatedAt time.Time
}

func (sizeRow) TableName() string { return "sizes" }

func (r sizeRow) toDomain() domain.Size {
	return domain.Size{ID: r.ID, Label: r.Label, CreatedAt: r.CreatedAt.UTC()}
}

type colorRow struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	HexCode   string `gorm:"not null;default:''"`
	CreatedAt time.Time
}

func (colorRow) TableName() string { return "colors" }

func (r colorRow) toDomain() domain.Color {
	return domain.Color{ID: r.ID, Name: r.Name, HexCode: r.HexCode, CreatedAt: r.CreatedAt.UTC()}
}

type productRow struct {
	ID             int64  `gorm:"primaryKey"`
	Barcode        string `gorm:"uniqueIndex;not null"`
	Name           string `gorm:"not null"`
	CategoryID     *int64 `gorm:"index"`
	Color          string
	Brand          string
	CostPriceCents int64 `gorm:"not null"`
	SalePriceCents int64 `gorm:"not null"`
	Description    string
	ImagePath      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (productRow) TableName() string { return "products" }

func (r productRow) toDomain(categoryName string) domain.Product {
	return domain.Product{
		ID:             r.ID,
		Barcode:        r.Barcode,
		Name:           r.Name,
		CategoryID:     r.CategoryID,
		CategoryName:   categoryName,
		Color:          r.Color,
		Brand:          r.Brand,
		CostPriceCents: r.CostPriceCents,
		SalePriceCents: r.SalePriceCents,
		Description:    r.Description,
		ImagePath:      r.ImagePath,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func productRowFrom(p domain.Product) productRow {
	return productRow{
		ID:             p.ID,
		Barcode:        p.Barcode,
		Name:           p.Name,
		CategoryID:     p.CategoryID,
		Color:          p.Color,
		Brand:          p.Brand,
		CostPriceCents: p.CostPriceCents,
		SalePriceCents: p.SalePriceCents,
		Description:    p.Description,
		ImagePath:      p.ImagePath,
		CreatedAt:      p.CreatedAt,
	}
}

type stockRow struct {
	ProductID       int64 `gorm:"primaryKey;autoIncrement:false"`
	SizeID          int64 `gorm:"primaryKey;autoIncrement:false;index"`
	Quantity        int   `gorm:"not null"`
	MinimumQuantity int   `gorm:"not null"`
	UpdatedAt       time.Time
}

func (stockRow) TableName() string { return "stock" }

type movementRow struct {
	ID              int64  `gorm:"primaryKey"`
	ProductID       int64  `gorm:"index;not null"`
	SizeID          int64  `gorm:"not null"`
	SizeLabel       string `gorm:"not null"`
	Kind            string `gorm:"not null"`
	Source          string `gorm:"not null"`
	Quantity        int    `gorm:"not null"`
	BeforeQty       int    `gorm:"not null"`
	AfterQty        int    `gorm:"not null"`
	UnitPriceCents  int64
	TotalValueCents int64
	Note            string
	CreatedAt       time.Time `gorm:"index"`
}

func (movementRow) TableName() string { return "stock_movements" }

func (r movementRow) toDomain(productName string) domain.StockMovement {
	return domain.StockMovement{
		ID:              r.ID,
		ProductID:       r.ProductID,
		ProductName:     productName,
		SizeID:          r.SizeID,
		SizeLabel:       r.SizeLabel,
		Kind:            r.Kind,
		Source:          r.Source,
		Quantity:        r.Quantity,
		Before:          r.BeforeQty,
		After:           r.AfterQty,
		UnitPriceCents:  r.UnitPriceCents,
		TotalValueCents: r.TotalValueCents,
		Note:            r.Note,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type customerRow struct {
	ID               int64  `gorm:"primaryKey"`
	FirstName        string `gorm:"not null"`
	LastName         string
	Phone            string `gorm:"uniqueIndex;not null"`
	Note             string
	InitialDebtCents int64 `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (customerRow) TableName() string { return "customers" }

func (r customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:               r.ID,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		Phone:            r.Phone,
		Note:             r.Note,
		InitialDebtCents: r.InitialDebtCents,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type saleRow struct {
	ID              int64  `gorm:"primaryKey"`
	SaleNumber      string `gorm:"uniqueIndex;not null"`
	CustomerID      *int64 `gorm:"index"`
	GrossTotalCents int64  `gorm:"not null"`
	DiscountCents   int64  `gorm:"not null"`
	FinalTotalCents int64  `gorm:"not null"`
	PaymentMethod   string `gorm:"not null"`
	Note            string
	CreatedBy       string
	CreatedAt       time.Time     `gorm:"index"`
	Lines           []saleLineRow `gorm:"foreignKey:SaleID"`
}

func (saleRow) TableName() string { return "sales" }

type saleLineRow struct {
	SaleID           int64  `gorm:"primaryKey;autoIncrement:false"`
	LineNo           int    `gorm:"primaryKey;autoIncrement:false"`
	ProductID        int64  `gorm:"index;not null"`
	SizeID           int64  `gorm:"index;not null"`
	ProductName      string `gorm:"not null"`
	Barcode          string `gorm:"not null"`
	SizeLabel        string `gorm:"not null"`
	Quantity         int    `gorm:"not null"`
	UnitPriceCents   int64  `gorm:"not null"`
	UnitCostCents    int64  `gorm:"not null"`
	LineTotalCents   int64  `gorm:"not null"`
	ReturnedQuantity int    `gorm:"not null;default:0"`
}

func (saleLineRow) TableName() string { return "sale_lines" }

func (r saleRow) toDomain(customerName string) domain.Sale {
	sale := domain.Sale{
		ID:              r.ID,
		SaleNumber:      r.SaleNumber,
		CustomerID:      r.CustomerID,
		CustomerName:    customerName,
		LineCount:       len(r.Lines),
		GrossTotalCents: r.GrossTotalCents,
		DiscountCents:   r.DiscountCents,
		FinalTotalCents: r.FinalTotalCents,
		PaymentMethod:   r.PaymentMethod,
		Note:            r.Note,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	sale.Lines = make([]domain.SaleLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		sale.Lines = append(sale.Lines, domain.SaleLine{
			ProductID:        l.ProductID,
			SizeID:           l.SizeID,
			ProductName:      l.ProductName,
			Barcode:          l.Barcode,
			SizeLabel:        l.SizeLabel,
			Quantity:         l.Quantity,
			UnitPriceCents:   l.UnitPriceCents,
			UnitCostCents:    l.UnitCostCents,
			LineTotalCents:   l.LineTotalCents,
			ReturnedQuantity: l.ReturnedQuantity,
		})
	}
	sale.ReturnStatus = domain.ReturnStatusOf(sale.Lines)
	return sale
}

type returnRow struct {
	ID              int64  `gorm:"primaryKey"`
	ReturnNumber    string `gorm:"uniqueIndex;not null"`
	SaleID          int64  `gorm:"index;not null"`
	SaleNumber      string `gorm:"not null"`
	CustomerID      *int64 `gorm:"index"`
	TotalCents      int64  `gorm:"not null"`
	DebtCreditCents int64  `gorm:"not null;default:0"`
	Reason          string
	Note            string
	CreatedBy       string
	CreatedAt       time.Time
	Lines           []returnLineRow `gorm:"foreignKey:ReturnID"`
}

func (returnRow) TableName() string { return "returns" }

type returnLineRow struct {
	ReturnID       int64  `gorm:"primaryKey;autoIncrement:false"`
	LineNo         int    `gorm:"primaryKey;autoIncrement:false"`
	ProductID      int64  `gorm:"index;not null"`
	SizeID         int64  `gorm:"index;not null"`
	ProductName    string `gorm:"not null"`
	SizeLabel      string `gorm:"not null"`
	Quantity       int    `gorm:"not null"`
	UnitPriceCents int64  `gorm:"not null"`
	LineTotalCents int64  `gorm:"not null"`
}

func (returnLineRow) TableName() string { return "return_lines" }

func (r returnRow) toDomain(customerName string) domain.Return {
	ret := domain.Return{
		ID:              r.ID,
		ReturnNumber:    r.ReturnNumber,
		SaleID:          r.SaleID,
		SaleNumber:      r.SaleNumber,
		CustomerID:      r.CustomerID,
		CustomerName:    customerName,
		TotalCents:      r.TotalCents,
		DebtCreditCents: r.DebtCreditCents,
		Reason:          r.Reason,
		Note:            r.Note,
		CreatedBy:       r.CreatedBy,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	ret.Lines = make([]domain.ReturnLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		ret.Lines = append(ret.Lines, domain.ReturnLine{
			ProductID:      l.ProductID,
			SizeID:         l.SizeID,
			ProductName:    l.ProductName,
			SizeLabel:      l.SizeLabel,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
			LineTotalCents: l.LineTotalCents,
		})
	}
	return ret
}

type paymentRow struct {
	ID          int64  `gorm:"primaryKey"`
	CustomerID  int64  `gorm:"index;not null"`
	AmountCents int64  `gorm:"not null"`
	Method      string `gorm:"not null"`
	Note        string
	ReturnID    *int64
	CreatedBy   string
	CreatedAt   time.Time
}

func (paymentRow) TableName() string { return "debt_payments" }

func (r paymentRow) toDomain(customerName string) domain.DebtPayment {
	return domain.DebtPayment{
		ID:           r.ID,
		CustomerID:   r.CustomerID,
		CustomerName: customerName,
		AmountCents:  r.AmountCents,
		Method:       r.Method,
		Note:         r.Note,
		ReturnID:     r.ReturnID,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type settingsRow struct {
	ID                    int `gorm:"primaryKey;autoIncrement:false"`
	StoreName             string
	LogoPath              string
	Phone                 string
	Address               string
	WhatsApp              string
	Instagram             string
	TikTok                string
	SizesEnabled          bool
	LockPasscode          string
	BarcodeShowsStoreName bool
	UpdatedAt             time.Time
}

func (settingsRow) TableName() string { return "settings" }

func (r settingsRow) toDomain() domain.Settings {
	return domain.Settings{
		StoreName:             r.StoreName,
		LogoPath:              r.LogoPath,
		Phone:                 r.Phone,
		Address:               r.Address,
		WhatsApp:              r.WhatsApp,
		Instagram:             r.Instagram,
		TikTok:                r.TikTok,
		SizesEnabled:          r.SizesEnabled,
		LockPasscode:          r.LockPasscode,
		BarcodeShowsStoreName: r.BarcodeShowsStoreName,
		UpdatedAt:             r.UpdatedAt.UTC(),
	}
}

func settingsRowFrom(st domain.Settings) settingsRow {
	return settingsRow{
		ID:                    1,
		StoreName:             st.StoreName,
		LogoPath:              st.LogoPath,
		Phone:                 st.Phone,
		Address:               st.Address,
		WhatsApp:              st.WhatsApp,
		Instagram:             st.Instagram,
		TikTok:                st.TikTok,
		SizesEnabled:          st.SizesEnabled,
		LockPasscode:          st.LockPasscode,
		BarcodeShowsStoreName: st.BarcodeShowsStoreName,
	}
}

type userRow struct {
	ID        int64 `gorm:"primaryKey"`
	FirstName string
	LastName  string
	Username  string `gorm:"uniqueIndex;not null"`
	Password  string `gorm:"not null"`
	Role      string `gorm:"not null"`
	Active    bool   `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "app_users" }

func (r userRow) toDomain() domain.UserAccount {
	return domain.UserAccount{
		ID:        r.ID,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Username:  r.Username,
		Password:  r.Password,
		Role:      r.Role,
		Active:    r.Active,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func userRowFrom(u domain.UserAccount) userRow {
	return userRow{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Password:  u.Password,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type auditRow struct {
	ID            int64 `gorm:"primaryKey"`
	ActorUsername string
	ActorRole     string
	Action        string
	EntityType    string
	EntityID      string
	Detail        string
	CreatedAt     time.Time `gorm:"index"`
}

func (auditRow) TableName() string { return "audit_logs" }

func allModels() []any {
	return []any{
		&categoryRow{}, &sizeRow{}, &colorRow{}, &productRow{}, &stockRow{}, &movementRow{},
		&customerRow{}, &saleRow{}, &saleLineRow{}, &returnRow{}, &returnLineRow{},
		&paymentRow{}, &settingsRow{}, &userRow{}, &auditRow{},
	}
}
