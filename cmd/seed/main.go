package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/crosslock/darkpool/internal/config"
	"github.com/crosslock/darkpool/internal/db"
	"github.com/crosslock/darkpool/internal/models"
)

// Seed the database with test data: two traders, a crossing pair of
// orders, and one settled match.
func main() {
	ctx := context.Background()
	cfg := config.Load()

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// First check if we already have journaled matches
	matches, err := database.GetMatches(ctx)
	if err != nil {
		log.Fatalf("Failed to check matches: %v", err)
	}
	if len(matches) > 0 {
		fmt.Printf("Database already has %d matches. No need to seed.\n", len(matches))
		os.Exit(0)
	}

	// Create test traders if they don't exist
	for _, name := range []string{"trader1", "trader2"} {
		if _, err := database.GetTraderByName(ctx, name); err == nil {
			continue
		}
		// bcrypt hash of "password"
		_, err := database.CreateTrader(ctx, name,
			"$2a$10$XLhV7TU4dIvHO1d9UKgoT.Kt1XCYIbLV4LkQqmXGtN6VBnsmgS.G.")
		if err != nil {
			log.Fatalf("Failed to create %s: %v", name, err)
		}
	}

	now := time.Now()

	// A crossing pair, already consumed by the seeded match below.
	buy := models.Order{
		ID:         0,
		Trader:     "trader1",
		TokenIn:    "WETH",
		TokenOut:   "USDC",
		Amount:     0,
		LimitPrice: 100,
		IsBuy:      true,
		CreatedAt:  now.Add(-2 * time.Hour),
	}
	sell := models.Order{
		ID:         1,
		Trader:     "trader2",
		TokenIn:    "USDC",
		TokenOut:   "WETH",
		Amount:     0,
		LimitPrice: 90,
		IsBuy:      false,
		CreatedAt:  now.Add(-time.Hour),
	}
	for _, o := range []models.Order{buy, sell} {
		if err := database.SaveOrder(ctx, &o); err != nil {
			log.Fatalf("Failed to save order %d: %v", o.ID, err)
		}
	}

	// A pair still resting, for the next matching pass to find.
	restingBuy := models.Order{
		ID:         2,
		Trader:     "trader1",
		TokenIn:    "DAI",
		TokenOut:   "USDC",
		Amount:     25,
		LimitPrice: 102,
		IsBuy:      true,
		CreatedAt:  now.Add(-30 * time.Minute),
	}
	restingSell := models.Order{
		ID:         3,
		Trader:     "trader2",
		TokenIn:    "USDC",
		TokenOut:   "DAI",
		Amount:     25,
		LimitPrice: 98,
		IsBuy:      false,
		CreatedAt:  now.Add(-15 * time.Minute),
	}
	for _, o := range []models.Order{restingBuy, restingSell} {
		if err := database.SaveOrder(ctx, &o); err != nil {
			log.Fatalf("Failed to save order %d: %v", o.ID, err)
		}
	}

	// Journal the settled match for the consumed pair: midpoint of
	// 100 and 90.
	result := models.MatchResult{
		BuyOrderID:     buy.ID,
		SellOrderID:    sell.ID,
		ExecutionPrice: 95,
		Amount:         10,
		Cost:           1,
	}
	if _, err := database.RecordMatch(ctx, result, 0, 0); err != nil {
		log.Fatalf("Failed to record match: %v", err)
	}

	fmt.Println("Successfully seeded the database!")
}
