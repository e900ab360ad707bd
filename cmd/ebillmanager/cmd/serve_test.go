package cmd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type slowRunner struct {
	finished atomic.Bool
}

func (r *slowRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	// A billing pass still finishing after cancellation.
	time.Sleep(50 * time.Millisecond)
	r.finished.Store(true)
	return ctx.Err()
}

func TestStartBackgroundWaitsForRunner(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &slowRunner{}
	wait := startBackground(ctx, cancel, r, zap.NewNop())
	assert.False(t, r.finished.Load())

	wait()
	assert.True(t, r.finished.Load(), "wait returned before the runner finished")
}
