package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rl1809/easy-inventory/internal/port"
)

const (
	sweepBatchSize = 100
	cleanupTimeout = 5 * time.Second
)

// BlobCleaner deletes photos whose records are gone. The tombstone row is the
// source of truth; the queue only makes deletion prompt.
type BlobCleaner struct {
	blobs      port.BlobStore
	tombstones port.TombstoneRepository
}

func NewBlobCleaner(blobs port.BlobStore, tombstones port.TombstoneRepository) *BlobCleaner {
	return &BlobCleaner{blobs: blobs, tombstones: tombstones}
}

// Clean deletes one blob and its tombstones.
func (c *BlobCleaner) Clean(ctx context.Context, ref string) error {
	if err := c.blobs.DeleteBlob(ctx, ref); err != nil {
		return fmt.Errorf("delete blob: %w", err)
	}
	if err := c.tombstones.DeleteTombstonesByRef(ctx, ref); err != nil {
		return fmt.Errorf("delete tombstone: %w", err)
	}
	return nil
}

// Sweep retries every pending tombstone once and returns how many were cleared.
func (c *BlobCleaner) Sweep(ctx context.Context) (int, error) {
	pending, err := c.tombstones.ListTombstones(ctx, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list tombstones: %w", err)
	}

	cleared := 0
	for _, t := range pending {
		if err := c.blobs.DeleteBlob(ctx, t.Ref); err != nil {
			log.Printf("sweeper: delete %s (attempt %d): %v", t.Ref, t.Attempts+1, err)
			if markErr := c.tombstones.MarkTombstoneAttempt(ctx, t.ID); markErr != nil {
				log.Printf("sweeper: mark attempt %s: %v", t.ID, markErr)
			}
			continue
		}
		if err := c.tombstones.DeleteTombstone(ctx, t.ID); err != nil {
			log.Printf("sweeper: delete tombstone %s: %v", t.ID, err)
			continue
		}
		cleared++
	}
	return cleared, nil
}

// StartWorkers drains queue with n workers. Call wg.Wait after closing the queue.
func (c *BlobCleaner) StartWorkers(n int, queue <-chan string, wg *sync.WaitGroup) {
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.workerLoop(id, queue)
		}(i)
	}
}

func (c *BlobCleaner) workerLoop(id int, queue <-chan string) {
	for ref := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)

		if err := c.Clean(ctx, ref); err != nil {
			// Tombstone stays; the sweeper retries it.
			log.Printf("worker %d: failed to clean %s: %v", id, ref, err)
		} else {
			log.Printf("worker %d: cleaned %s", id, ref)
		}

		cancel()
	}
}

// RunSweeper sweeps every interval until ctx is done.
func (c *BlobCleaner) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Sweep(ctx)
			if err != nil {
				log.Printf("sweeper: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweeper: cleared %d tombstones", n)
			}
		}
	}
}
