package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_ResolvesValue(t *testing.T) {
	f := Go(context.Background(), time.Second, func(ctx context.Context) (string, error) {
		return "riddle", nil
	})
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "riddle", v)
}

func TestFuture_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	f := Go(context.Background(), 0, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_Timeout(t *testing.T) {
	f := Go(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_Cancel(t *testing.T) {
	started := make(chan struct{})
	f := Go(context.Background(), 0, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	<-started
	f.Cancel()
	f.Cancel()

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestFuture_AwaitRespectsCallerContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := Go(context.Background(), 0, func(ctx context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFuture_LateSuccessIsKept(t *testing.T) {
	f := Go(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		time.Sleep(30 * time.Millisecond)
		return 7, nil
	})
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
