package fulfillmentsvc

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/spf13/viper"
)

// SimulatedBakery stands in for real fulfillment by sleeping for a random duration.
type SimulatedBakery struct {
	lo time.Duration
	hi time.Duration
	// rand returns a value in [0, n)
	rand func(n int64) int64
}

// NewSimulatedBakery creates a bakery whose orders take between lo and hi.
func NewSimulatedBakery(lo, hi time.Duration) *SimulatedBakery {
	if hi < lo {
		hi = lo
	}

	return &SimulatedBakery{lo: lo, hi: hi, rand: rand.Int64N}
}

// SimulatedBakeryFromConfig reads worker.fulfillment.min_seconds and max_seconds, 5 and 15 by default.
func SimulatedBakeryFromConfig() *SimulatedBakery {
	minSeconds := viper.GetInt("worker.fulfillment.min_seconds")
	if minSeconds == 0 {
		minSeconds = 5
	}

	maxSeconds := viper.GetInt("worker.fulfillment.max_seconds")
	if maxSeconds == 0 {
		maxSeconds = 15
	}

	return NewSimulatedBakery(time.Duration(minSeconds)*time.Second, time.Duration(maxSeconds)*time.Second)
}

// Duration picks how long the next order takes.
func (b *SimulatedBakery) Duration() time.Duration {
	spread := int64(b.hi - b.lo)
	if spread <= 0 {
		return b.lo
	}

	return b.lo + time.Duration(b.rand(spread+1))
}

// Fulfill blocks for a random duration or until ctx is done.
func (b *SimulatedBakery) Fulfill(ctx context.Context, orderID int64) error {
	d := b.Duration()
	slog.InfoContext(ctx, "Baking order", "order_id", orderID, "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
