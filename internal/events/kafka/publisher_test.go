package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"geosats/internal/bounty/models"
	"geosats/internal/events"
	"geosats/internal/geo"
	id "geosats/pkg/domain"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func header(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublisher(t *testing.T) {
	b := models.Bounty{
		ID:       id.NewBountyID(),
		Title:    "Central Park Treasure Hunt",
		Reward:   2500,
		Creator:  "nyc_wanderer",
		Location: geo.Coordinate{Latitude: 40.7749, Longitude: -73.9656},
	}
	e := events.BountyCreated(b, time.Unix(1700000000, 0))

	t.Run("produces keyed record with headers", func(t *testing.T) {
		producer := &fakeProducer{}
		p := NewPublisher(producer, "bounty-events")

		require.NoError(t, p.Publish(context.Background(), e))
		require.Len(t, producer.records, 1)

		rec := producer.records[0]
		assert.Equal(t, "bounty-events", rec.Topic)
		assert.Equal(t, b.ID.String(), string(rec.Key))
		assert.Equal(t, "30001", header(rec, "kind"))
		assert.Equal(t, e.ID.String(), header(rec, "event_id"))

		var decoded events.Event
		require.NoError(t, json.Unmarshal(rec.Value, &decoded))
		assert.Equal(t, e, decoded)
	})

	t.Run("wraps produce errors", func(t *testing.T) {
		brokerErr := errors.New("broker unavailable")
		p := NewPublisher(&fakeProducer{err: brokerErr}, "bounty-events")

		err := p.Publish(context.Background(), e)
		require.Error(t, err)
		assert.ErrorIs(t, err, brokerErr)
		assert.Contains(t, err.Error(), "bounty-events")
	})
}
