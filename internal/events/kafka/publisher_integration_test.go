//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"geosats/internal/bounty/models"
	"geosats/internal/events"
	eventskafka "geosats/internal/events/kafka"
	"geosats/internal/geo"
	"geosats/internal/platform/config"
	platformkafka "geosats/internal/platform/kafka"
	id "geosats/pkg/domain"
	"geosats/pkg/testutil/containers"
)

func TestKafkaPublisher_RoundTrip(t *testing.T) {
	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{
		Brokers:        []string{broker.Broker},
		Topic:          "geosats.events.test",
		ClientID:       "geosats-test",
		Partitions:     3,
		ProduceTimeout: 10 * time.Second,
	}
	client, err := platformkafka.New(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(client.Close)

	require.NoError(t, client.Health(ctx))
	// creating an existing topic is not an error
	require.NoError(t, client.EnsureTopic(ctx, cfg.Topic, cfg.Partitions))

	b := models.Bounty{
		ID:       id.NewBountyID(),
		Title:    "Central Park Treasure Hunt",
		Reward:   2500,
		Creator:  "nyc_wanderer",
		Location: geo.Coordinate{Latitude: 40.7749, Longitude: -73.9656},
	}
	created := events.BountyCreated(b, time.Unix(1700000000, 0))
	claimed := events.BountyClaimed(b, "hunter", 0.02, time.Unix(1700000100, 0))

	pub := eventskafka.NewPublisher(client, cfg.Topic)
	require.NoError(t, pub.Publish(ctx, created))
	require.NoError(t, pub.Publish(ctx, claimed))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	var got []events.Event
	for len(got) < 2 {
		fetches := consumer.PollFetches(ctx)
		require.NoError(t, ctx.Err(), "timed out waiting for records")
		fetches.EachError(func(_ string, _ int32, err error) {
			t.Fatalf("fetch error: %v", err)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			assert.Equal(t, b.ID.String(), string(r.Key))
			var e events.Event
			require.NoError(t, json.Unmarshal(r.Value, &e))
			got = append(got, e)
		})
	}

	// same key, same partition, so order is preserved
	require.Len(t, got, 2)
	assert.Equal(t, created.ID, got[0].ID)
	assert.Equal(t, claimed.ID, got[1].ID)
}

func TestKafkaClient_NoBrokers(t *testing.T) {
	client, err := platformkafka.New(context.Background(), config.KafkaConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}
