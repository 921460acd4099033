// Package actors drives the matching engine from many goroutines at once.
// Every actor loops until stop closes or ctx ends.
package actors

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kidwon/lifetree-app-api/apperr"
	"github.com/kidwon/lifetree-app-api/matching"
	"github.com/kidwon/lifetree-app-api/outbox"
	"github.com/kidwon/lifetree-app-api/requirement"
)

// Board is the shared set of requirement ids actors pick from.
type Board struct {
	mu  sync.RWMutex
	ids []string
}

func (b *Board) Add(id string) {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.mu.Unlock()
}

func (b *Board) Pick(rng *rand.Rand) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ids) == 0 {
		return "", false
	}
	return b.ids[rng.Intn(len(b.ids))], true
}

// Tally counts outcomes across actors. Rejected holds classified errors,
// which are expected under contention; Failed holds everything else, mostly
// connections killed by chaos.
type Tally struct {
	OK       atomic.Int64
	Rejected atomic.Int64
	Failed   atomic.Int64
}

func (t *Tally) record(err error) {
	switch {
	case err == nil:
		t.OK.Add(1)
	case apperr.KindOf(err) != nil:
		t.Rejected.Add(1)
	default:
		t.Failed.Add(1)
	}
}

func (t *Tally) String() string {
	return fmt.Sprintf("ok=%d rejected=%d failed=%d", t.OK.Load(), t.Rejected.Load(), t.Failed.Load())
}

func loop(ctx context.Context, stop <-chan struct{}, pause func() time.Duration, step func(context.Context)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		step(ctx)
		time.Sleep(pause())
	}
}

func jitter(rng *rand.Rand, base, spread int) func() time.Duration {
	return func() time.Duration {
		return time.Duration(base+rng.Intn(spread)) * time.Millisecond
	}
}

// Applicant keeps applying to random requirements on the board.
func Applicant(ctx context.Context, engine *matching.Engine, board *Board, applicantID string, seed int64, tally *Tally, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	return loop(ctx, stop, jitter(rng, 5, 20), func(ctx context.Context) {
		id, ok := board.Pick(rng)
		if !ok {
			return
		}
		_, err := engine.Apply(ctx, id, applicantID)
		tally.record(err)
	})
}

// Owner resolves pending applications from the dashboard, approving about
// one in three.
func Owner(ctx context.Context, engine *matching.Engine, ownerID string, seed int64, tally *Tally, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	return loop(ctx, stop, jitter(rng, 10, 30), func(ctx context.Context) {
		rows, err := engine.ListApplicationsForOwner(ctx, ownerID)
		if err != nil {
			tally.record(err)
			return
		}
		var pending []matching.OwnerRow
		for _, row := range rows {
			if row.PendingApproval {
				pending = append(pending, row)
			}
		}
		if len(pending) == 0 {
			return
		}
		row := pending[rng.Intn(len(pending))]
		if rng.Intn(3) == 0 {
			_, err = engine.Approve(ctx, row.Requirement.ID, ownerID, row.Application.ID)
		} else {
			_, err = engine.Reject(ctx, row.Requirement.ID, ownerID, row.Application.ID)
		}
		tally.record(err)
	})
}

// Poster keeps the board fresh and occasionally closes an old requirement
// while applicants are still racing for it.
func Poster(ctx context.Context, svc *requirement.Service, board *Board, ownerID string, seed int64, tally *Tally, stop <-chan struct{}) error {
	rng := rand.New(rand.NewSource(seed))
	n := 0
	return loop(ctx, stop, jitter(rng, 150, 150), func(ctx context.Context) {
		n++
		view, err := svc.Create(ctx, requirement.CreateParams{
			CreatorID: ownerID,
			Title:     fmt.Sprintf("stress requirement %d", n),
		})
		tally.record(err)
		if err == nil {
			board.Add(view.ID)
		}
		if rng.Intn(4) != 0 {
			return
		}
		if id, ok := board.Pick(rng); ok {
			if rng.Intn(2) == 0 {
				_, err = svc.Complete(ctx, ownerID, id)
			} else {
				_, err = svc.Cancel(ctx, ownerID, id)
			}
			tally.record(err)
		}
	})
}

// Relay drains the outbox the way the cron job does in production.
func Relay(ctx context.Context, relay *outbox.Relay, stop <-chan struct{}) error {
	return loop(ctx, stop, func() time.Duration { return 100 * time.Millisecond }, func(ctx context.Context) {
		_, _ = relay.RunOnce(ctx)
	})
}
