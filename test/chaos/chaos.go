// Package chaos injects infrastructure faults during stress runs.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend kills one other backend of the current database on
// roughly one tick in five. Transactions caught mid-flight must roll back
// cleanly, which the oracles then verify.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, seed int64, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rng.Intn(5) != 0 {
				continue
			}
			_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
				WHERE datname = current_database() AND pid <> pg_backend_pid()
				ORDER BY random() LIMIT 1`)
		}
	}
}
