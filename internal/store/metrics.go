package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once for the process; store instances share them.
var (
	reservationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_reservations_total",
		Help: "Units successfully reserved into carts.",
	})

	reservationRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_reservation_rejections_total",
		Help: "Reservation attempts rejected for insufficient availability.",
	})

	checkoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_checkouts_total",
		Help: "Carts successfully checked out.",
	})

	expiredCartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cart_expired_total",
		Help: "Idle carts removed by the expiry sweeper.",
	})
)
