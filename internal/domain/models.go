package domain

import "time"

const (
	RoleAdmin  = "admin"
	RoleWorker = "worker"
)

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentCredit = "credit"
	// PaymentReturn tags the implicit debt reduction written by a return against a credit sale.
	PaymentReturn = "return"
)

const (
	ReturnStatusNone    = "none"
	ReturnStatusPartial = "partial"
	ReturnStatusFull    = "full"
)

const (
	MovementIn  = "in"
	MovementOut = "out"
)

const (
	SourceStockAdd    = "stock_add"
	SourceStockAdjust = "stock_adjust"
	SourceStockDelete = "stock_delete"
	SourceSale        = "sale"
	SourceReturn      = "return"
)

const (
	// DefaultStockMinimum applies to standalone stock creation.
	DefaultStockMinimum = 5
	// DefaultEditStockMinimum applies to stock written from the product edit flow and overwrites.
	DefaultEditStockMinimum = 1
)

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Size struct {
	ID        int64     `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}

type Color struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	HexCode   string    `json:"hex_code,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type SizeRequest struct {
	Label string `json:"label"`
}

type ColorRequest struct {
	Name    string `json:"name"`
	HexCode string `json:"hex_code"`
}

type Product struct {
	ID             int64     `json:"id"`
	Barcode        string    `json:"barcode"`
	Name           string    `json:"name"`
	CategoryID     *int64    `json:"category_id,omitempty"`
	CategoryName   string    `json:"category_name,omitempty"`
	Color          string    `json:"color,omitempty"`
	Brand          string    `json:"brand,omitempty"`
	CostPriceCents int64     `json:"cost_price_cents,omitempty"`
	SalePriceCents int64     `json:"sale_price_cents"`
	Description    string    `json:"description,omitempty"`
	ImagePath      string    `json:"image_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type StockInput struct {
	SizeID          int64 `json:"size_id"`
	Quantity        int   `json:"quantity"`
	MinimumQuantity *int  `json:"minimum_quantity,omitempty"`
}

type ProductCreateRequest struct {
	Barcode        string       `json:"barcode"`
	Name           string       `json:"name"`
	CategoryID     *int64       `json:"category_id,omitempty"`
	Color          string       `json:"color"`
	Brand          string       `json:"brand"`
	CostPriceCents int64        `json:"cost_price_cents"`
	SalePriceCents int64        `json:"sale_price_cents"`
	Description    string       `json:"description"`
	ImagePath      string       `json:"image_path"`
	Stock          []StockInput `json:"stock,omitempty"`
}

type ProductUpdateRequest struct {
	Barcode        *string `json:"barcode,omitempty"`
	Name           *string `json:"name,omitempty"`
	CategoryID     *int64  `json:"category_id,omitempty"`
	ClearCategory  bool    `json:"clear_category,omitempty"`
	Color          *string `json:"color,omitempty"`
	Brand          *string `json:"brand,omitempty"`
	CostPriceCents *int64  `json:"cost_price_cents,omitempty"`
	SalePriceCents *int64  `json:"sale_price_cents,omitempty"`
	Description    *string `json:"description,omitempty"`
	ImagePath      *string `json:"image_path,omitempty"`
}

type BarcodeLookupResponse struct {
	Found   bool     `json:"found"`
	Product *Product `json:"product,omitempty"`
}

type StockEntry struct {
	ProductID       int64     `json:"product_id"`
	ProductName     string    `json:"product_name,omitempty"`
	Barcode         string    `json:"barcode,omitempty"`
	CategoryID      *int64    `json:"category_id,omitempty"`
	CategoryName    string    `json:"category_name,omitempty"`
	SizeID          int64     `json:"size_id"`
	SizeLabel       string    `json:"size_label,omitempty"`
	Quantity        int       `json:"quantity"`
	MinimumQuantity int       `json:"minimum_quantity"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Low reports whether the entry is at or below its minimum threshold.
func (e StockEntry) Low() bool {
	return e.Quantity <= e.MinimumQuantity
}

type StockAddRequest struct {
	ProductID       int64 `json:"product_id"`
	SizeID          int64 `json:"size_id"`
	Quantity        int   `json:"quantity"`
	MinimumQuantity *int  `json:"minimum_quantity,omitempty"`
}

type StockSetRequest struct {
	Quantity        int  `json:"quantity"`
	MinimumQuantity *int `json:"minimum_quantity,omitempty"`
}

type StockMovement struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"product_id"`
	ProductName     string    `json:"product_name,omitempty"`
	SizeID          int64     `json:"size_id"`
	SizeLabel       string    `json:"size_label,omitempty"`
	Kind            string    `json:"kind"`
	Source          string    `json:"source"`
	Quantity        int       `json:"quantity"`
	Before          int       `json:"before"`
	After           int       `json:"after"`
	UnitPriceCents  int64     `json:"unit_price_cents,omitempty"`
	TotalValueCents int64     `json:"total_value_cents,omitempty"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type MovementFilter struct {
	ProductID int64
	From      *time.Time
	To        *time.Time
}

type Customer struct {
	ID               int64     `json:"id"`
	FirstName        string    `json:"first_name"`
	LastName         string    `json:"last_name"`
	Phone            string    `json:"phone"`
	Note             string    `json:"note,omitempty"`
	InitialDebtCents int64     `json:"initial_debt_cents"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (c Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type CustomerCreateRequest struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Phone            string `json:"phone"`
	Note             string `json:"note"`
	InitialDebtCents int64  `json:"initial_debt_cents"`
}

type CustomerUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Note      *string `json:"note,omitempty"`
}

type SaleLineInput struct {
	ProductID      int64 `json:"product_id"`
	SizeID         int64 `json:"size_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents,omitempty"`
}

type SaleCreateRequest struct {
	CustomerID    *int64          `json:"customer_id,omitempty"`
	Lines         []SaleLineInput `json:"lines"`
	DiscountCents int64           `json:"discount_cents"`
	PaymentMethod string          `json:"payment_method"`
	Note          string          `json:"note"`
}

type SaleLine struct {
	ProductID        int64  `json:"product_id"`
	SizeID           int64  `json:"size_id"`
	ProductName      string `json:"product_name,omitempty"`
	Barcode          string `json:"barcode,omitempty"`
	SizeLabel        string `json:"size_label,omitempty"`
	Quantity         int    `json:"quantity"`
	UnitPriceCents   int64  `json:"unit_price_cents"`
	UnitCostCents    int64  `json:"unit_cost_cents,omitempty"`
	LineTotalCents   int64  `json:"line_total_cents"`
	ReturnedQuantity int    `json:"returned_quantity"`
}

// Returnable is the quantity of the line that can still be returned.
func (l SaleLine) Returnable() int {
	remaining := l.Quantity - l.ReturnedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

type Sale struct {
	ID              int64      `json:"id"`
	SaleNumber      string     `json:"sale_number"`
	CustomerID      *int64     `json:"customer_id,omitempty"`
	CustomerName    string     `json:"customer_name,omitempty"`
	Lines           []SaleLine `json:"lines,omitempty"`
	LineCount       int        `json:"line_count"`
	GrossTotalCents int64      `json:"gross_total_cents"`
	DiscountCents   int64      `json:"discount_cents"`
	FinalTotalCents int64      `json:"final_total_cents"`
	PaymentMethod   string     `json:"payment_method"`
	Note            string     `json:"note,omitempty"`
	ReturnStatus    string     `json:"return_status,omitempty"`
	CreatedBy       string     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

type SaleFilter struct {
	From       *time.Time
	To         *time.Time
	CustomerID *int64
	WithLines  bool
}

type ReturnLineInput struct {
	ProductID int64 `json:"product_id"`
	SizeID    int64 `json:"size_id"`
	Quantity  int   `json:"quantity"`
}

type ReturnCreateRequest struct {
	SaleID     int64             `json:"sale_id,omitempty"`
	SaleNumber string            `json:"sale_number,omitempty"`
	Lines      []ReturnLineInput `json:"lines"`
	Reason     string            `json:"reason"`
	Note       string            `json:"note"`
}

type ReturnLine struct {
	ProductID      int64  `json:"product_id"`
	SizeID         int64  `json:"size_id"`
	ProductName    string `json:"product_name,omitempty"`
	SizeLabel      string `json:"size_label,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Return struct {
	ID              int64        `json:"id"`
	ReturnNumber    string       `json:"return_number"`
	SaleID          int64        `json:"sale_id"`
	SaleNumber      string       `json:"sale_number,omitempty"`
	CustomerID      *int64       `json:"customer_id,omitempty"`
	CustomerName    string       `json:"customer_name,omitempty"`
	Lines           []ReturnLine `json:"lines,omitempty"`
	TotalCents      int64        `json:"total_cents"`
	DebtCreditCents int64        `json:"debt_credit_cents"`
	Reason          string       `json:"reason,omitempty"`
	Note            string       `json:"note,omitempty"`
	CreatedBy       string       `json:"created_by,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

type DebtPayment struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customer_id"`
	CustomerName string    `json:"customer_name,omitempty"`
	AmountCents  int64     `json:"amount_cents"`
	Method       string    `json:"method"`
	Note         string    `json:"note,omitempty"`
	ReturnID     *int64    `json:"return_id,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type PaymentCreateRequest struct {
	CustomerID  int64  `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Method      string `json:"method"`
	Note        string `json:"note"`
}

type DebtSummary struct {
	CustomerID       int64  `json:"customer_id"`
	CustomerName     string `json:"customer_name"`
	Phone            string `json:"phone"`
	InitialDebtCents int64  `json:"initial_debt_cents"`
	CreditSalesCents int64  `json:"credit_sales_cents"`
	TotalDebtCents   int64  `json:"total_debt_cents"`
	TotalPaidCents   int64  `json:"total_paid_cents"`
	OutstandingCents int64  `json:"outstanding_cents"`
}

type Settings struct {
	StoreName             string    `json:"store_name"`
	LogoPath              string    `json:"logo_path,omitempty"`
	Phone                 string    `json:"phone,omitempty"`
	Address               string    `json:"address,omitempty"`
	WhatsApp              string    `json:"whatsapp,omitempty"`
	Instagram             string    `json:"instagram,omitempty"`
	TikTok                string    `json:"tiktok,omitempty"`
	SizesEnabled          bool      `json:"sizes_enabled"`
	LockPasscode          string    `json:"-"`
	HasLockPasscode       bool      `json:"has_lock_passcode"`
	BarcodeShowsStoreName bool      `json:"barcode_shows_store_name"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// DefaultSettings is the singleton written on first read and after a reset.
func DefaultSettings() Settings {
	return Settings{
		StoreName:    "Geyim",
		SizesEnabled: true,
		UpdatedAt:    time.Now().UTC(),
	}
}

type SettingsUpdateRequest struct {
	StoreName             *string `json:"store_name,omitempty"`
	LogoPath              *string `json:"logo_path,omitempty"`
	Phone                 *string `json:"phone,omitempty"`
	Address               *string `json:"address,omitempty"`
	WhatsApp              *string `json:"whatsapp,omitempty"`
	Instagram             *string `json:"instagram,omitempty"`
	TikTok                *string `json:"tiktok,omitempty"`
	SizesEnabled          *bool   `json:"sizes_enabled,omitempty"`
	LockPasscode          *string `json:"lock_passcode,omitempty"`
	BarcodeShowsStoreName *bool   `json:"barcode_shows_store_name,omitempty"`
}

type User struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u UserAccount) Public() User {
	return User{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	User        User   `json:"user"`
}

type UserCreateRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type UserUpdateRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Username  *string `json:"username,omitempty"`
	Password  *string `json:"password,omitempty"`
	Role      *string `json:"role,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

type PasswordChangeRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type Actor struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type AuditLog struct {
	ID            int64     `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type SalesSummary struct {
	Period        string `json:"period"`
	SaleCount     int    `json:"sale_count"`
	GrossCents    int64  `json:"gross_cents"`
	DiscountCents int64  `json:"discount_cents"`
	NetCents      int64  `json:"net_cents"`
}

type ProfitReportItem struct {
	ProductID      int64  `json:"product_id"`
	ProductName    string `json:"product_name"`
	Barcode        string `json:"barcode"`
	SizeLabel      string `json:"size_label"`
	Quantity       int    `json:"quantity"`
	CostTotalCents int64  `json:"cost_total_cents"`
	SaleTotalCents int64  `json:"sale_total_cents"`
	ProfitCents    int64  `json:"profit_cents"`
}

type ProfitReport struct {
	Start          string             `json:"start"`
	End            string             `json:"end"`
	Items          []ProfitReportItem `json:"items"`
	CostTotalCents int64              `json:"cost_total_cents"`
	SaleTotalCents int64              `json:"sale_total_cents"`
	ProfitCents    int64              `json:"profit_cents"`
	DiscountCents  int64              `json:"discount_cents"`
	NetProfitCents int64              `json:"net_profit_cents"`
}

type StockValueReport struct {
	ProductCount         int   `json:"product_count"`
	TotalUnits           int   `json:"total_units"`
	CostValueCents       int64 `json:"cost_value_cents"`
	SaleValueCents       int64 `json:"sale_value_cents"`
	PotentialProfitCents int64 `json:"potential_profit_cents"`
}

type ProductStatistics struct {
	ProductID              int64  `json:"product_id"`
	ProductName            string `json:"product_name"`
	Barcode                string `json:"barcode"`
	CategoryID             *int64 `json:"category_id,omitempty"`
	CategoryName           string `json:"category_name,omitempty"`
	PurchasedQuantity      int    `json:"purchased_quantity"`
	PurchasedValueCents    int64  `json:"purchased_value_cents"`
	SoldQuantity           int    `json:"sold_quantity"`
	SoldValueCents         int64  `json:"sold_value_cents"`
	AverageUnitProfitCents int64  `json:"average_unit_profit_cents"`
	ProfitCents            int64  `json:"profit_cents"`
	CurrentStock           int    `json:"current_stock"`
}

type ProductStatisticsReport struct {
	Start                string              `json:"start"`
	End                  string              `json:"end"`
	Items                []ProductStatistics `json:"items"`
	PurchasedQuantity    int                 `json:"purchased_quantity"`
	SoldQuantity         int                 `json:"sold_quantity"`
	PurchasedValueCents  int64               `json:"purchased_value_cents"`
	SoldValueCents       int64               `json:"sold_value_cents"`
	ProfitCents          int64               `json:"profit_cents"`
	AverageProfitPercent float64             `json:"average_profit_percent"`
}

type Printer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
	Kind string `json:"kind"`
}

type CartLine struct {
	ProductID      int64 `json:"product_id"`
	SizeID         int64 `json:"size_id"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unit_price_cents,omitempty"`
}

type CartCheckoutRequest struct {
	CustomerID    *int64 `json:"customer_id,omitempty"`
	DiscountCents int64  `json:"discount_cents"`
	PaymentMethod string `json:"payment_method"`
	Note          string `json:"note"`
}

type LockStatus struct {
	Locked             bool       `json:"locked"`
	LockedAt           *time.Time `json:"locked_at,omitempty"`
	IdleTimeoutSeconds int        `json:"idle_timeout_seconds"`
}

type UnlockRequest struct {
	Password string `json:"password"`
}
