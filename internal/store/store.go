package store

import (
	"context"
	"errors"
	"time"

	"geyim/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrDuplicate          = errors.New("already exists")
	ErrInUse              = errors.New("still referenced")
	ErrOverpayment        = errors.New("payment exceeds outstanding debt")
	ErrReturnExceedsSale  = errors.New("return quantity exceeds sold quantity")
	ErrLastAdmin          = errors.New("last active admin cannot be removed")
)

type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, name string) (*domain.Category, error)
	RenameCategory(ctx context.Context, id int64, name string) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListSizes(ctx context.Context) ([]domain.Size, error)
	CreateSize(ctx context.Context, label string) (*domain.Size, error)
	RenameSize(ctx context.Context, id int64, label string) (*domain.Size, error)
	DeleteSize(ctx context.Context, id int64) error

	ListColors(ctx context.Context) ([]domain.Color, error)
	CreateColor(ctx context.Context, color domain.Color) (*domain.Color, error)
	UpdateColor(ctx context.Context, color domain.Color) (*domain.Color, error)
	DeleteColor(ctx context.Context, id int64) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product, stock []domain.StockEntry) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListStock(ctx context.Context) ([]domain.StockEntry, error)
	ListStockForProduct(ctx context.Context, productID int64) ([]domain.StockEntry, error)
	// AddStock applies a signed quantity delta to an entry, creating it with
	// minimum when absent. A delta that would leave the entry below zero fails
	// with ErrInsufficientStock.
	AddStock(ctx context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error)
	SetStock(ctx context.Context, productID, sizeID int64, qty int, minimum int) (*domain.StockEntry, error)
	DeleteStock(ctx context.Context, productID, sizeID int64) error
	ListLowStock(ctx context.Context) ([]domain.StockEntry, error)
	ListStockMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error
	GetDebtSummary(ctx context.Context, customerID int64) (domain.DebtSummary, error)
	ListDebtSummaries(ctx context.Context) ([]domain.DebtSummary, error)

	// CreateSale prices, checks and decrements stock for every line in one transaction.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	GetSaleByNumber(ctx context.Context, number string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)

	// CreateReturn bounds quantities by what is still returnable, restocks and credits debt atomically.
	CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error)
	GetReturn(ctx context.Context, id int64) (*domain.Return, error)
	ListReturns(ctx context.Context) ([]domain.Return, error)

	CreatePayment(ctx context.Context, payment domain.DebtPayment) (*domain.DebtPayment, error)
	ListPayments(ctx context.Context) ([]domain.DebtPayment, error)
	ListPaymentsForCustomer(ctx context.Context, customerID int64) ([]domain.DebtPayment, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	GetUser(ctx context.Context, id int64) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	UpdateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	DeleteUser(ctx context.Context, id int64) error
	UpdateUserPassword(ctx context.Context, username string, password string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	// Reset wipes business data, keeping users, sizes, colors and audit logs, then re-seeds defaults.
	Reset(ctx context.Context) error
}
