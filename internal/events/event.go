// Package events broadcasts bounty facts to subscribers. Event shapes follow
// the relay format used by the bounty clients: a numeric kind, JSON content
// and string tags.
package events

import (
	"encoding/json"
	"strconv"
	"time"

	"geosats/internal/bounty/models"
	id "geosats/pkg/domain"
)

// Kind identifies the event type.
type Kind int

const (
	KindBountyCreated Kind = 30001
	KindBountyClaimed Kind = 30002
)

func (k Kind) String() string {
	switch k {
	case KindBountyCreated:
		return "bounty_created"
	case KindBountyClaimed:
		return "bounty_claimed"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

type Event struct {
	ID        id.EventID  `json:"id"`
	Kind      Kind        `json:"kind"`
	PubKey    string      `json:"pubkey"`
	BountyID  id.BountyID `json:"bounty_id"`
	Content   string      `json:"content"`
	Tags      [][]string  `json:"tags"`
	CreatedAt int64       `json:"created_at"`
}

// Tag returns the first value of the named tag.
func (e Event) Tag(name string) (string, bool) {
	for _, t := range e.Tags {
		if len(t) > 1 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}

type createdContent struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Reward      int64   `json:"reward"`
	Difficulty  string  `json:"difficulty"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Puzzle      string  `json:"puzzle,omitempty"`
}

// BountyCreated describes a newly published bounty.
func BountyCreated(b models.Bounty, now time.Time) Event {
	content, _ := json.Marshal(createdContent{
		Title:       b.Title,
		Description: b.Description,
		Reward:      b.Reward,
		Difficulty:  string(b.Difficulty),
		Lat:         b.Location.Latitude,
		Lng:         b.Location.Longitude,
		Puzzle:      b.Puzzle,
	})
	return Event{
		ID:       id.NewEventID(),
		Kind:     KindBountyCreated,
		PubKey:   b.Creator,
		BountyID: b.ID,
		Content:  string(content),
		Tags: [][]string{
			{"d", b.ID.String()},
			{"location", strconv.FormatFloat(b.Location.Latitude, 'f', -1, 64), strconv.FormatFloat(b.Location.Longitude, 'f', -1, 64)},
			{"reward", strconv.FormatInt(b.Reward, 10)},
		},
		CreatedAt: now.Unix(),
	}
}

type claimedContent struct {
	Claimer    string  `json:"claimer"`
	DistanceKm float64 `json:"distance_km"`
	Reward     int64   `json:"reward"`
}

// BountyClaimed describes a successful claim.
func BountyClaimed(b models.Bounty, claimer string, distanceKm float64, now time.Time) Event {
	content, _ := json.Marshal(claimedContent{Claimer: claimer, DistanceKm: distanceKm, Reward: b.Reward})
	return Event{
		ID:       id.NewEventID(),
		Kind:     KindBountyClaimed,
		PubKey:   claimer,
		BountyID: b.ID,
		Content:  string(content),
		Tags: [][]string{
			{"e", b.ID.String()},
			{"claim", "success"},
		},
		CreatedAt: now.Unix(),
	}
}
