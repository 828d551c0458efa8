package store

import "time"

// sweepLoop periodically removes carts that have sat idle past the TTL.
func (s *MemoryStore) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopSweep:
			return
		}
	}
}

// sweepExpired scans for idle carts under the store mutex, then expires each
// one under its own cart mutex, the same as any other operation. A failure on
// one cart is logged and does not stop the sweep of the rest.
func (s *MemoryStore) sweepExpired() {
	cutoff := s.now().Add(-s.cartTTL)

	s.mu.Lock()
	var stale []int64
	for userID, cart := range s.carts {
		if cart.LastUpdate.Before(cutoff) {
			stale = append(stale, userID)
		}
	}
	s.mu.Unlock()

	if len(stale) == 0 {
		return
	}
	s.logger.Debug().Int("carts", len(stale)).Msg("sweeping idle carts")

	for _, userID := range stale {
		s.expireCart(userID, cutoff)
	}
}

// expireCart releases every unit the cart holds back to its product's pool
// and deletes the cart. The cart may have been touched or checked out since
// the scan, so freshness is re-checked once the cart mutex is held.
func (s *MemoryStore) expireCart(userID int64, cutoff time.Time) {
	cart, cartLock, err := s.acquireCart(userID, false)
	if err != nil {
		return // checked out while we were sweeping
	}
	defer cartLock.Unlock()

	s.mu.Lock()
	fresh := !cart.LastUpdate.Before(cutoff)
	s.mu.Unlock()
	if fresh {
		return
	}

	for productID, entry := range cart.Entries {
		product, productLock, err := s.lookupProduct(productID)
		if err != nil {
			s.logger.Warn().Int64("user_id", userID).Int64("product_id", productID).
				Err(err).Msg("skipping cart line with no availability record")
			continue
		}
		productLock.Lock()
		product.AlreadyPut -= entry.UnitCount
		productLock.Unlock()
	}

	s.mu.Lock()
	delete(s.carts, userID)
	delete(s.cartLocks, userID)
	s.mu.Unlock()

	expiredCartsTotal.Inc()
	s.logger.Info().Int64("user_id", userID).Msg("removed idle cart")
}
