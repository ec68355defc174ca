package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/easy-inventory/internal/adapter/storage"
	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	username      = "stress-user"
	totalRequests = 50
	jwtSecret     = "stress-test-secret-key"
)

func main() {
	ctx := context.Background()

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	// Clear previous test data
	rdb.Del(ctx, "username:"+username)

	// Fresh SQLite database
	dir, err := os.MkdirTemp("", "inventory-stress")
	if err != nil {
		log.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	db, err := storage.Open(ctx, storage.DialectSQLite, filepath.Join(dir, "stress.db"))
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db, storage.DialectSQLite); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Initialize adapters and service
	sqlAdapter := storage.NewSQLAdapter(db, storage.DialectSQLite)
	redisAdapter := storage.NewRedisAdapter(rdb)
	authService := service.NewAuthService(
		sqlAdapter, redisAdapter, redisAdapter,
		storage.NewLogMailer("http://localhost:8080"),
		service.NewTokenManager(jwtSecret, time.Hour),
		time.Hour,
	)

	// Counters
	var successCount atomic.Int32
	var takenCount atomic.Int32
	var busyCount atomic.Int32
	var otherCount atomic.Int32

	// Spawn concurrent registrations of one username
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := authService.Register(ctx, domain.RegisterInput{
				Username: username,
				Email:    fmt.Sprintf("stress-%d@example.com", n),
				Password: "secret123",
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrUsernameTaken):
				takenCount.Add(1)
			case errors.Is(err, service.ErrRegistrationBusy):
				busyCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("register %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Registered:       %d\n", success)
	fmt.Printf("Username Taken:   %d\n", takenCount.Load())
	fmt.Printf("Busy:             %d\n", busyCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == 1 && otherCount.Load() == 0 {
		fmt.Println("PASS: Exactly 1 registration succeeded")
	} else {
		fmt.Printf("FAIL: Expected 1 success and no other errors, got %d/%d\n", success, otherCount.Load())
	}

	// Verify a single account in the database
	var accounts int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE username = ?`, username).Scan(&accounts); err != nil {
		log.Fatalf("failed to count accounts: %v", err)
	}
	fmt.Printf("Accounts Stored:  %d\n", accounts)

	if accounts == 1 {
		fmt.Println("PASS: One account stored")
	} else {
		fmt.Printf("FAIL: Expected 1 account, got %d\n", accounts)
	}
}
