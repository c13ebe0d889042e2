package session

import (
	"context"
	"log"
	"sync"
	"time"

	"geyim/backend/internal/domain"
	"geyim/backend/internal/idlelock"
	"geyim/backend/internal/store"
)

// SubmitFunc commits a sale built from the cart.
type SubmitFunc func(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error)

// State is the in-memory application state of one signed-in user. Only the
// identity survives a restart, since it is carried by the access token.
type State struct {
	mu       sync.Mutex
	identity domain.Actor
	cart     []domain.CartLine
	lock     *idlelock.Locker
}

func (st *State) Identity() domain.Actor {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.identity
}

func (st *State) Lock() *idlelock.Locker {
	return st.lock
}

func (st *State) Cart() []domain.CartLine {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.snapshot()
}

// AddToCart merges lines for the same product and size.
func (st *State) AddToCart(line domain.CartLine) ([]domain.CartLine, error) {
	if line.ProductID < 1 || line.SizeID < 1 || line.Quantity < 1 || line.UnitPriceCents < 0 {
		return nil, store.ErrInvalidTransaction
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if i := st.indexOf(line.ProductID, line.SizeID); i >= 0 {
		st.cart[i].Quantity += line.Quantity
		if line.UnitPriceCents > 0 {
			st.cart[i].UnitPriceCents = line.UnitPriceCents
		}
	} else {
		st.cart = append(st.cart, line)
	}
	return st.snapshot(), nil
}

func (st *State) SetQuantity(productID, sizeID int64, qty int) ([]domain.CartLine, error) {
	if qty < 1 {
		return nil, store.ErrInvalidTransaction
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	i := st.indexOf(productID, sizeID)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	st.cart[i].Quantity = qty
	return st.snapshot(), nil
}

func (st *State) RemoveFromCart(productID, sizeID int64) ([]domain.CartLine, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	i := st.indexOf(productID, sizeID)
	if i < 0 {
		return nil, store.ErrNotFound
	}
	st.cart = append(st.cart[:i], st.cart[i+1:]...)
	return st.snapshot(), nil
}

func (st *State) ClearCart() {
	st.mu.Lock()
	st.cart = nil
	st.mu.Unlock()
}

// Checkout submits the whole cart as one sale. The cart is cleared only when
// submit succeeds; the state stays locked for the duration of the commit.
func (st *State) Checkout(ctx context.Context, req domain.CartCheckoutRequest, submit SubmitFunc) (domain.Sale, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.cart) == 0 {
		return domain.Sale{}, store.ErrInvalidTransaction
	}
	lines := make([]domain.SaleLineInput, 0, len(st.cart))
	for _, line := range st.cart {
		lines = append(lines, domain.SaleLineInput{
			ProductID:      line.ProductID,
			SizeID:         line.SizeID,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	sale, err := submit(ctx, domain.SaleCreateRequest{
		CustomerID:    req.CustomerID,
		Lines:         lines,
		DiscountCents: req.DiscountCents,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
	})
	if err != nil {
		return domain.Sale{}, err
	}
	st.cart = nil
	return sale, nil
}

func (st *State) snapshot() []domain.CartLine {
	out := make([]domain.CartLine, len(st.cart))
	copy(out, st.cart)
	return out
}

func (st *State) indexOf(productID, sizeID int64) int {
	for i, line := range st.cart {
		if line.ProductID == productID && line.SizeID == sizeID {
			return i
		}
	}
	return -1
}

// Manager keeps one State per username.
type Manager struct {
	mu          sync.Mutex
	idleTimeout time.Duration
	states      map[string]*State
}

func NewManager(idleTimeout time.Duration) *Manager {
	return &Manager{idleTimeout: idleTimeout, states: make(map[string]*State)}
}

// Get returns the state for actor, creating it on first use. The identity is
// refreshed on every call so role changes apply to the running session.
func (m *Manager) Get(actor domain.Actor) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[actor.Username]; ok {
		st.mu.Lock()
		st.identity = actor
		st.mu.Unlock()
		return st
	}
	username := actor.Username
	st := &State{identity: actor}
	st.lock = idlelock.New(m.idleTimeout, func(idle bool) {
		if idle {
			log.Printf("[session] locked after idle timeout user=%s", username)
			return
		}
		log.Printf("[session] locked user=%s", username)
	})
	m.states[username] = st
	return st
}

func (m *Manager) Lookup(username string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[username]
	return st, ok
}

// End discards the state of a user, e.g. on logout or account deletion.
func (m *Manager) End(username string) {
	m.mu.Lock()
	st, ok := m.states[username]
	delete(m.states, username)
	m.mu.Unlock()
	if ok {
		st.lock.Stop()
	}
}

func (m *Manager) Close() {
	m.mu.Lock()
	states := m.states
	m.states = make(map[string]*State)
	m.mu.Unlock()
	for _, st := range states {
		st.lock.Stop()
	}
}
