package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_market_sim/internal/domain"
	"github.com/vitos/crypto_market_sim/internal/infrastructure/storage"
)

// Seeds a demo user with a starting balance so orders can be placed against
// the simulator right away.
func main() {
	dbPath := flag.String("db", "simulator.db", "path to the sqlite database")
	balance := flag.Float64("balance", 100000, "starting cash balance")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now()

	user := &domain.User{
		ID:        uuid.NewString(),
		Balance:   0,
		CreatedAt: now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	err = store.Transact(ctx, func(tx domain.TradeTx) error {
		if err := tx.AdjustBalance(ctx, user.ID, *balance); err != nil {
			return err
		}
		return tx.AppendTransaction(ctx, &domain.Transaction{
			OwnerID:   user.ID,
			Kind:      domain.TxDeposit,
			Amount:    *balance,
			CreatedAt: now,
		})
	})
	if err != nil {
		fmt.Printf("Failed to fund user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Created user %s with balance %.2f\n", user.ID, *balance)
}
