package store

import (
	"errors"

	"github.com/Iwomichu/cart-manager/internal/domain"
)

// Common errors returned by the store
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCartNotFound      = errors.New("cart not found")
)

// CartStore defines the interface for cart and availability operations
type CartStore interface {
	// IncrementEntry reserves one unit of the product into the user's cart,
	// creating the cart on first use. Fails with ErrProductNotFound if no
	// availability record exists, or ErrInsufficientStock if every owned unit
	// is already reserved.
	IncrementEntry(userID, productID int64) error

	// DecrementEntry releases one reserved unit back to the product's pool.
	DecrementEntry(userID, productID int64) error

	// ResetEntry releases the entire reserved quantity for the (user, product)
	// pair in one step. A no-op on an already-empty line.
	ResetEntry(userID, productID int64) error

	// Checkout commits every line of the user's cart, permanently consuming
	// the reserved units, then deletes the cart. Lines are committed one at a
	// time; see MemoryStore.Checkout for the failure semantics.
	Checkout(userID int64) error

	// ReduceAvailable shrinks a product's owned total. The product must exist.
	ReduceAvailable(productID int64, amount int) error

	// IncreaseAvailable grows a product's owned total, creating the
	// availability record if the product is unknown.
	IncreaseAvailable(productID int64, amount int) error

	// OverwriteState wholesale replaces carts and availability records.
	// Used for seeding at startup and disaster recovery.
	OverwriteState(state *domain.State)

	// GetCart returns a snapshot of the user's cart, or an empty cart if the
	// user has none.
	GetCart(userID int64) *domain.Cart

	// GetAvailability returns snapshots for the given products, or for every
	// known product when no IDs are given.
	GetAvailability(productIDs []int64) map[int64]*domain.ProductState

	// Close shuts down the store and any background processes
	Close() error
}
