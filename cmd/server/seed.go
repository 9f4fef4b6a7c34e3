package main

import (
	"context"
	"time"

	"geosats/internal/bounty/models"
	"geosats/internal/bounty/service"
	"geosats/internal/geo"
	"geosats/internal/identity"
	"geosats/pkg/requestcontext"
)

type demoBounty struct {
	creator string
	age     time.Duration
	req     models.CreateBountyRequest
}

var demoBounties = []demoBounty{
	{
		creator: "explorer123",
		age:     time.Hour,
		req: models.CreateBountyRequest{
			Title:       "Find the Golden Gate Secret",
			Description: "Locate the hidden plaque near the Golden Gate Bridge and solve the riddle engraved on it.",
			Reward:      5000,
			Difficulty:  models.DifficultyMedium,
			Location:    geo.Coordinate{Latitude: 37.8199, Longitude: -122.4783},
			Puzzle:      "What connects two cities but touches neither?",
		},
	},
	{
		creator: "nyc_wanderer",
		age:     2 * time.Hour,
		req: models.CreateBountyRequest{
			Title:       "Central Park Treasure Hunt",
			Description: "Find the statue of Alice in Wonderland and count the characters around her.",
			Reward:      2500,
			Difficulty:  models.DifficultyEasy,
			Location:    geo.Coordinate{Latitude: 40.7749, Longitude: -73.9656},
			Puzzle:      "How many characters surround Alice in this bronze wonderland?",
		},
	},
	{
		creator: "la_explorer",
		age:     30 * time.Minute,
		req: models.CreateBountyRequest{
			Title:       "Hollywood Sign Challenge",
			Description: "Get to the best viewpoint of the Hollywood Sign and answer the puzzle.",
			Reward:      10000,
			Difficulty:  models.DifficultyHard,
			Location:    geo.Coordinate{Latitude: 34.1341, Longitude: -118.3215},
			Puzzle:      "In what year was this iconic sign first erected?",
		},
	},
}

type publisher interface {
	PublishBounty(ctx context.Context, req models.CreateBountyRequest, creator identity.Provider) (*models.Bounty, error)
}

var _ publisher = (*service.Service)(nil)

// seedDemo publishes the demo bounties through the normal publish path so
// each creator's reward is locked in escrow.
func seedDemo(ctx context.Context, svc publisher, now time.Time) error {
	for _, d := range demoBounties {
		at := requestcontext.WithTime(ctx, now.Add(-d.age))
		if _, err := svc.PublishBounty(at, d.req, identity.FromID(d.creator)); err != nil {
			return err
		}
	}
	return nil
}
