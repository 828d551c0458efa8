package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Iwomichu/cart-manager/internal/domain"
)

// MemoryStore implements CartStore with purely in-memory state.
//
// Locking is three-tiered: one store-wide mutex guards the structure of the
// maps (creating or deleting a cart or product entry, and the full-state
// swap), plus one mutex per cart and one per product guarding the counters
// themselves. The store mutex is only ever held for short structural edits
// and lock-pointer lookups, never while waiting on a cart or product mutex.
// Every operation that needs both a cart and a product mutex takes the cart
// mutex first, so two operations on different (user, product) pairs cannot
// deadlock each other.
type MemoryStore struct {
	mu           sync.Mutex
	carts        map[int64]*domain.Cart
	products     map[int64]*domain.ProductState
	cartLocks    map[int64]*sync.Mutex
	productLocks map[int64]*sync.Mutex

	cartTTL       time.Duration
	sweepInterval time.Duration

	now    func() time.Time
	logger zerolog.Logger

	stopSweep chan struct{}
	wg        sync.WaitGroup
}

// entryMutation is applied to a cart line and its product's counters while
// both their mutexes are held. A mutation must validate before touching
// either counter: when it returns an error it must have mutated nothing, so
// a failed call leaves the line and the product exactly as they were.
type entryMutation func(entry *domain.CartEntry, product *domain.ProductState) error

// NewMemoryStore creates an empty store and starts the expiry sweeper, which
// runs every sweepInterval and removes carts idle for longer than cartTTL.
func NewMemoryStore(sweepInterval, cartTTL time.Duration, logger zerolog.Logger) *MemoryStore {
	s := &MemoryStore{
		carts:         make(map[int64]*domain.Cart),
		products:      make(map[int64]*domain.ProductState),
		cartLocks:     make(map[int64]*sync.Mutex),
		productLocks:  make(map[int64]*sync.Mutex),
		cartTTL:       cartTTL,
		sweepInterval: sweepInterval,
		now:           time.Now,
		logger:        logger,
		stopSweep:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.sweepLoop()

	return s
}

// acquireCart returns the user's current cart with its mutex held; the caller
// must unlock it. When create is false and the user has no cart, it returns
// ErrCartNotFound instead.
//
// A cart can be checked out or swept between the lock lookup and the lock
// acquisition, retiring the mutex we were waiting on. The loop re-validates
// the lookup after acquisition and retries against the replacement.
func (s *MemoryStore) acquireCart(userID int64, create bool) (*domain.Cart, *sync.Mutex, error) {
	for {
		s.mu.Lock()
		lock, ok := s.cartLocks[userID]
		if !ok {
			if !create {
				s.mu.Unlock()
				return nil, nil, fmt.Errorf("user %d: %w", userID, ErrCartNotFound)
			}
			lock = &sync.Mutex{}
			s.cartLocks[userID] = lock
			s.carts[userID] = domain.NewCart(s.now())
		}
		s.mu.Unlock()

		lock.Lock()

		s.mu.Lock()
		if s.cartLocks[userID] == lock {
			cart := s.carts[userID]
			s.mu.Unlock()
			return cart, lock, nil
		}
		s.mu.Unlock()
		lock.Unlock()
	}
}

// lookupProduct snapshots the product's state and mutex under the store mutex.
func (s *MemoryStore) lookupProduct(productID int64) (*domain.ProductState, *sync.Mutex, error) {
	s.mu.Lock()
	product, ok := s.products[productID]
	lock := s.productLocks[productID]
	s.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	return product, lock, nil
}

// modifyEntry runs apply against the user's cart line for the product, under
// the cart mutex then the product mutex. The cart is created on first use;
// the product must already have an availability record.
func (s *MemoryStore) modifyEntry(userID, productID int64, apply entryMutation) error {
	cart, cartLock, err := s.acquireCart(userID, true)
	if err != nil {
		return err
	}
	defer cartLock.Unlock()

	product, productLock, err := s.lookupProduct(productID)
	if err != nil {
		return err
	}

	productLock.Lock()
	defer productLock.Unlock()

	// LastUpdate is read by the sweeper's scan under the store mutex, so the
	// stamp has to happen under it as well.
	s.mu.Lock()
	cart.LastUpdate = s.now()
	s.mu.Unlock()

	entry, existed := cart.Entries[productID]
	if !existed {
		entry = &domain.CartEntry{}
		cart.Entries[productID] = entry
	}

	if err := apply(entry, product); err != nil {
		// Don't let a failed first touch leave an empty line behind.
		if !existed && entry.UnitCount == 0 {
			delete(cart.Entries, productID)
		}
		return err
	}
	return nil
}

// IncrementEntry reserves one unit of the product into the user's cart.
func (s *MemoryStore) IncrementEntry(userID, productID int64) error {
	err := s.modifyEntry(userID, productID, func(entry *domain.CartEntry, product *domain.ProductState) error {
		if product.AlreadyPut+1 > product.TotalCount {
			return fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
		}
		entry.UnitCount++
		product.AlreadyPut++
		return nil
	})
	if err == nil {
		reservationsTotal.Inc()
	} else if errors.Is(err, ErrInsufficientStock) {
		reservationRejectionsTotal.Inc()
	}
	return err
}

// DecrementEntry releases one reserved unit back to the product's pool.
// No lower bound is enforced here: callers release only what they reserved.
func (s *MemoryStore) DecrementEntry(userID, productID int64) error {
	return s.modifyEntry(userID, productID, func(entry *domain.CartEntry, product *domain.ProductState) error {
		entry.UnitCount--
		product.AlreadyPut--
		return nil
	})
}

// ResetEntry releases the entire reserved quantity for the (user, product)
// pair in one step.
func (s *MemoryStore) ResetEntry(userID, productID int64) error {
	return s.modifyEntry(userID, productID, func(entry *domain.CartEntry, product *domain.ProductState) error {
		product.AlreadyPut -= entry.UnitCount
		entry.UnitCount = 0
		return nil
	})
}

// Checkout commits the user's cart line by line: each line's units are
// removed from both AlreadyPut and TotalCount, consuming them for good, and
// the cart is deleted afterwards.
//
// Lines are committed one at a time, not atomically across the cart. If the
// product's total has been reduced below a line's reservation since it was
// made, that line is rolled back to zero and the checkout fails, but lines
// already processed stay committed and remain in the cart.
func (s *MemoryStore) Checkout(userID int64) error {
	cart, cartLock, err := s.acquireCart(userID, false)
	if err != nil {
		return err
	}
	defer cartLock.Unlock()

	for productID, entry := range cart.Entries {
		product, productLock, err := s.lookupProduct(productID)
		if err != nil {
			return err
		}

		productLock.Lock()
		difference := product.TotalCount - entry.UnitCount
		if difference < 0 {
			product.AlreadyPut -= entry.UnitCount
			entry.UnitCount = 0
			productLock.Unlock()
			return fmt.Errorf("product %d: %w", productID, ErrInsufficientStock)
		}
		product.AlreadyPut -= entry.UnitCount
		product.TotalCount -= entry.UnitCount
		productLock.Unlock()
	}

	s.mu.Lock()
	delete(s.carts, userID)
	delete(s.cartLocks, userID)
	s.mu.Unlock()

	checkoutsTotal.Inc()
	return nil
}

// ReduceAvailable shrinks a product's owned total. Reducing below the
// reserved count is not defended against here; checkout detects the deficit
// and rolls the affected line back.
func (s *MemoryStore) ReduceAvailable(productID int64, amount int) error {
	product, productLock, err := s.lookupProduct(productID)
	if err != nil {
		return err
	}

	productLock.Lock()
	defer productLock.Unlock()
	product.TotalCount -= amount
	return nil
}

// IncreaseAvailable grows a product's owned total, creating the availability
// record and its mutex first when the product is unknown.
func (s *MemoryStore) IncreaseAvailable(productID int64, amount int) error {
	s.mu.Lock()
	product, ok := s.products[productID]
	if !ok {
		product = &domain.ProductState{ProductID: productID}
		s.products[productID] = product
		s.productLocks[productID] = &sync.Mutex{}
	}
	productLock := s.productLocks[productID]
	s.mu.Unlock()

	productLock.Lock()
	defer productLock.Unlock()
	product.TotalCount += amount
	return nil
}

// OverwriteState wholesale replaces carts and availability records and
// rebuilds every per-cart and per-product mutex. Operations already past
// their lock lookup keep mutating the superseded snapshot, which is then
// dropped with it; callers seed state before opening traffic.
func (s *MemoryStore) OverwriteState(state *domain.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.carts = make(map[int64]*domain.Cart, len(state.CartByUserID))
	s.cartLocks = make(map[int64]*sync.Mutex, len(state.CartByUserID))
	for userID, cart := range state.CartByUserID {
		if cart.Entries == nil {
			cart.Entries = make(map[int64]*domain.CartEntry)
		}
		// A payload without last_update would otherwise be swept immediately.
		if cart.LastUpdate.IsZero() {
			cart.LastUpdate = s.now()
		}
		s.carts[userID] = cart
		s.cartLocks[userID] = &sync.Mutex{}
	}

	s.products = make(map[int64]*domain.ProductState, len(state.StateByProduct))
	s.productLocks = make(map[int64]*sync.Mutex, len(state.StateByProduct))
	for productID, product := range state.StateByProduct {
		s.products[productID] = product
		s.productLocks[productID] = &sync.Mutex{}
	}
}

// GetCart returns a snapshot of the user's cart, or an empty cart if the user
// has none yet.
func (s *MemoryStore) GetCart(userID int64) *domain.Cart {
	cart, cartLock, err := s.acquireCart(userID, false)
	if err != nil {
		return domain.NewCart(s.now())
	}
	defer cartLock.Unlock()
	return cart.Clone()
}

// GetAvailability returns snapshots for the given products, or for every
// known product when productIDs is empty. Unknown IDs are left out.
func (s *MemoryStore) GetAvailability(productIDs []int64) map[int64]*domain.ProductState {
	type guarded struct {
		product *domain.ProductState
		lock    *sync.Mutex
	}

	s.mu.Lock()
	if len(productIDs) == 0 {
		productIDs = make([]int64, 0, len(s.products))
		for productID := range s.products {
			productIDs = append(productIDs, productID)
		}
	}
	snapshot := make(map[int64]guarded, len(productIDs))
	for _, productID := range productIDs {
		if product, ok := s.products[productID]; ok {
			snapshot[productID] = guarded{product: product, lock: s.productLocks[productID]}
		}
	}
	s.mu.Unlock()

	out := make(map[int64]*domain.ProductState, len(snapshot))
	for productID, g := range snapshot {
		g.lock.Lock()
		copied := *g.product
		g.lock.Unlock()
		out[productID] = &copied
	}
	return out
}

// Close stops the expiry sweeper and waits for it to finish.
func (s *MemoryStore) Close() error {
	close(s.stopSweep)
	s.wg.Wait()
	return nil
}
