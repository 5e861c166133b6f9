package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mrmoe28/permitscout/internal/notify"
)

func TestMemoryPublisherRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := notify.NewMemory()

	id1, err := pub.Publish(context.Background(), notify.Event{Type: notify.EventCompleted, AcquisitionID: "acq-1"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)

	id2, err := pub.Publish(context.Background(), notify.Event{Type: notify.EventCompleted, AcquisitionID: "acq-2"})
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	events := pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "acq-1", events[0].AcquisitionID)
	assert.Equal(t, "acq-2", events[1].AcquisitionID)

	events[0].AcquisitionID = "modified"
	assert.Equal(t, "acq-1", pub.Events()[0].AcquisitionID, "Events returns a copy")

	require.NoError(t, pub.Close())
}

func TestNoopPublisher(t *testing.T) {
	t.Parallel()

	var pub notify.Noop
	id, err := pub.Publish(context.Background(), notify.Event{Type: notify.EventCompleted})
	require.NoError(t, err)
	assert.Empty(t, id)
	require.NoError(t, pub.Close())
}

func TestPubSubPublishDeliversEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "acquisitions")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "sub-id", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub, err := notify.NewPubSubWithTopic(client, topic, nil)
	require.NoError(t, err)

	completedAt := time.Date(2026, 8, 25, 15, 0, 0, 0, time.UTC)
	event := notify.Event{
		Type:           notify.EventCompleted,
		AcquisitionID:  "acq-1",
		JurisdictionID: "city-springfield-il",
		Confidence:     0.8,
		CompletedAt:    completedAt,
	}

	id, err := pub.Publish(ctx, event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	received := make(chan *pubsub.Message, 1)
	go func() {
		_ = sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			received <- msg
			cancel()
		})
	}()

	msg := <-received
	assert.Equal(t, notify.EventCompleted, msg.Attributes["event"])

	var got notify.Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "acq-1", got.AcquisitionID)
	assert.Equal(t, "city-springfield-il", got.JurisdictionID)
	assert.Equal(t, 0.8, got.Confidence)
	assert.True(t, got.CompletedAt.Equal(completedAt))

	require.NoError(t, pub.Close())
}

func TestNewPubSubWithTopicValidation(t *testing.T) {
	t.Parallel()

	_, err := notify.NewPubSubWithTopic(nil, nil, nil)
	require.Error(t, err)
}
