// Command seed reads current product availability from the owning system's
// Postgres database and pushes it to a running cart manager as a fresh state,
// wiping any carts. Meant to be run by the owning system at its startup or
// for disaster recovery.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/Iwomichu/cart-manager/pkg/client"
)

// Availability is one unit per warehouse stock row, products with no stock
// included at zero.
const availabilityQuery = `
	SELECT p.id, COALESCE(COUNT(w.id), 0)
	FROM products p
	LEFT JOIN warehouse_products w ON w.product_id = p.id
	GROUP BY p.id`

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "cart-manager-seed").Logger()

	databaseURL := os.Getenv("DATABASE_URL")
	managerURL := os.Getenv("CART_MANAGER_URL")
	accessToken := os.Getenv("ACCESS_TOKEN")
	if databaseURL == "" || managerURL == "" || accessToken == "" {
		logger.Fatal().Msg("DATABASE_URL, CART_MANAGER_URL and ACCESS_TOKEN must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	counts, err := loadAvailability(ctx, databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load availability")
	}
	logger.Info().Int("products", len(counts)).Msg("loaded availability from database")

	c := client.NewClient(managerURL, accessToken, nil)
	if err := c.Initialize(ctx, counts); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed cart manager")
	}
	logger.Info().Msg("cart manager seeded")
}

func loadAvailability(ctx context.Context, databaseURL string) (map[int64]int, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	rows, err := db.QueryContext(ctx, availabilityQuery)
	if err != nil {
		return nil, fmt.Errorf("availability query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var productID int64
		var available int
		if err := rows.Scan(&productID, &available); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[productID] = available
	}
	return counts, rows.Err()
}
