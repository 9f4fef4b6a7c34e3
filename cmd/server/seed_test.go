package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geosats/internal/bounty/models"
	"geosats/internal/identity"
	"geosats/pkg/requestcontext"
)

type recordingPublisher struct {
	creators []string
	times    []time.Time
	err      error
}

func (p *recordingPublisher) PublishBounty(ctx context.Context, req models.CreateBountyRequest, creator identity.Provider) (*models.Bounty, error) {
	if p.err != nil {
		return nil, p.err
	}
	who, err := creator.Identify(ctx)
	if err != nil {
		return nil, err
	}
	p.creators = append(p.creators, who)
	p.times = append(p.times, requestcontext.Now(ctx))
	return &models.Bounty{Title: req.Title, Reward: req.Reward}, nil
}

func TestSeedDemo(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("publishes every demo bounty backdated", func(t *testing.T) {
		p := &recordingPublisher{}
		require.NoError(t, seedDemo(context.Background(), p, now))

		assert.Equal(t, []string{"explorer123", "nyc_wanderer", "la_explorer"}, p.creators)
		assert.Equal(t, now.Add(-time.Hour), p.times[0])
		assert.Equal(t, now.Add(-30*time.Minute), p.times[2])
	})

	t.Run("demo requests are valid", func(t *testing.T) {
		for _, d := range demoBounties {
			req := d.req
			assert.NoError(t, req.Validate(), d.req.Title)
		}
	})

	t.Run("stops on first failure", func(t *testing.T) {
		p := &recordingPublisher{err: errors.New("insufficient balance")}
		assert.Error(t, seedDemo(context.Background(), p, now))
	})
}
