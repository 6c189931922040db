package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuietConsumer(t *testing.T, group sarama.ConsumerGroup) *Consumer {
	t.Helper()
	c := NewTestConsumer(group, logger.New(&config.LoggerConfig{Level: "error", Format: "json"}))
	t.Cleanup(func() { c.cancel() })
	return c
}

func encodeEvent(t *testing.T, eventType models.EventType, topic string, data interface{}) *sarama.ConsumerMessage {
	t.Helper()
	ev := models.Event{ID: uuid.New(), Type: eventType, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(t, err)
		ev.Data = raw
	}
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: topic, Value: value}
}

// recordingSession запоминает подтверждённые сообщения.
type recordingSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []*sarama.ConsumerMessage
}

func (s *recordingSession) Claims() map[string][]int32                          { return nil }
func (s *recordingSession) MemberID() string                                    { return "member" }
func (s *recordingSession) GenerationID() int32                                 { return 1 }
func (s *recordingSession) MarkOffset(string, int32, int64, string)             {}
func (s *recordingSession) ResetOffset(string, int32, int64, string)            {}
func (s *recordingSession) Commit()                                             {}
func (s *recordingSession) Context() context.Context                            { return s.ctx }
func (s *recordingSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg)
}

type channelClaim struct {
	topic string
	msgs  chan *sarama.ConsumerMessage
}

func (c *channelClaim) Topic() string                            { return c.topic }
func (c *channelClaim) Partition() int32                         { return 0 }
func (c *channelClaim) InitialOffset() int64                     { return sarama.OffsetNewest }
func (c *channelClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *channelClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func claimOf(topic string, msgs ...*sarama.ConsumerMessage) *channelClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return &channelClaim{topic: topic, msgs: ch}
}

// flakyGroup сначала отдаёт ошибку Consume, затем ждёт отмены контекста.
type flakyGroup struct {
	mu       sync.Mutex
	calls    int
	failures int
	closed   bool
	errs     chan error
}

func newFlakyGroup(failures int) *flakyGroup {
	return &flakyGroup{failures: failures, errs: make(chan error)}
}

func (g *flakyGroup) Consume(ctx context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	fail := g.calls <= g.failures
	g.mu.Unlock()
	if fail {
		return errors.New("broker not available")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (g *flakyGroup) Errors() <-chan error { return g.errs }
func (g *flakyGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.errs)
	}
	return nil
}
func (g *flakyGroup) Pause(map[string][]int32)  {}
func (g *flakyGroup) Resume(map[string][]int32) {}
func (g *flakyGroup) PauseAll()                 {}
func (g *flakyGroup) ResumeAll()                {}

func (g *flakyGroup) consumeCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestConsumer_RoutesEachStorefrontEventToItsHandler(t *testing.T) {
	c := newQuietConsumer(t, nil)

	var mu sync.Mutex
	seen := map[models.EventType]int{}
	for _, eventType := range []models.EventType{
		models.EventTypeOrderCreated,
		models.EventTypeOrderStatusChanged,
		models.EventTypeCouponRedeemed,
		models.EventTypeReviewApproved,
	} {
		want := eventType
		c.RegisterHandler(eventType, func(ctx context.Context, event *models.Event) error {
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, want, event.Type)
			seen[event.Type]++
			return nil
		})
	}
	require.Equal(t, 4, c.HandlerCount())

	msgs := []*sarama.ConsumerMessage{
		encodeEvent(t, models.EventTypeOrderCreated, "orders", models.OrderCreatedData{OrderNumber: "ORD-1"}),
		encodeEvent(t, models.EventTypeOrderStatusChanged, "orders", nil),
		encodeEvent(t, models.EventTypeCouponRedeemed, "coupons", nil),
		encodeEvent(t, models.EventTypeReviewApproved, "reviews", models.ReviewApprovedData{ReviewID: 1, ProductID: 2}),
		encodeEvent(t, models.EventTypeOrderCreated, "orders", nil),
	}
	for _, msg := range msgs {
		require.NoError(t, c.processMessage(msg))
	}

	assert.Equal(t, map[models.EventType]int{
		models.EventTypeOrderCreated:       2,
		models.EventTypeOrderStatusChanged: 1,
		models.EventTypeCouponRedeemed:     1,
		models.EventTypeReviewApproved:     1,
	}, seen)
}

func TestConsumer_ReviewApprovedReachesRatingRefresh(t *testing.T) {
	c := newQuietConsumer(t, nil)

	var refreshed []int64
	c.RegisterHandler(models.EventTypeReviewApproved, func(ctx context.Context, event *models.Event) error {
		var data models.ReviewApprovedData
		if err := event.DecodeData(&data); err != nil {
			return err
		}
		refreshed = append(refreshed, data.ProductID)
		return nil
	})

	before := testutil.ToFloat64(metrics.EventsConsumed.WithLabelValues(string(models.EventTypeReviewApproved), "success"))

	session := &recordingSession{ctx: context.Background()}
	claim := claimOf("reviews",
		encodeEvent(t, models.EventTypeReviewApproved, "reviews", models.ReviewApprovedData{ReviewID: 5, ProductID: 11}),
		encodeEvent(t, models.EventTypeReviewApproved, "reviews", models.ReviewApprovedData{ReviewID: 6, ProductID: 12}),
	)
	require.NoError(t, c.ConsumeClaim(session, claim))

	assert.Equal(t, []int64{11, 12}, refreshed)
	assert.Len(t, session.marked, 2)
	after := testutil.ToFloat64(metrics.EventsConsumed.WithLabelValues(string(models.EventTypeReviewApproved), "success"))
	assert.Equal(t, before+2, after)
}

func TestConsumer_ConsumeClaim_MarksMessagesThatFailed(t *testing.T) {
	c := newQuietConsumer(t, nil)
	c.RegisterHandler(models.EventTypeReviewApproved, func(ctx context.Context, event *models.Event) error {
		return errors.New("product 2 not found")
	})

	before := testutil.ToFloat64(metrics.EventsConsumed.WithLabelValues(string(models.EventTypeReviewApproved), "error"))

	failing := encodeEvent(t, models.EventTypeReviewApproved, "reviews", models.ReviewApprovedData{ReviewID: 1, ProductID: 2})
	garbage := &sarama.ConsumerMessage{Topic: "reviews", Value: []byte("{not json")}
	unknown := encodeEvent(t, models.EventType("product.deleted"), "reviews", nil)

	session := &recordingSession{ctx: context.Background()}
	require.NoError(t, c.ConsumeClaim(session, claimOf("reviews", failing, garbage, unknown)))

	assert.Equal(t, []*sarama.ConsumerMessage{failing, garbage, unknown}, session.marked)
	after := testutil.ToFloat64(metrics.EventsConsumed.WithLabelValues(string(models.EventTypeReviewApproved), "error"))
	assert.Equal(t, before+1, after)
}

func TestConsumer_ProcessMessage_Errors(t *testing.T) {
	c := newQuietConsumer(t, nil)
	c.RegisterHandler(models.EventTypeCouponRedeemed, func(ctx context.Context, event *models.Event) error {
		return errors.New("boom")
	})

	err := c.processMessage(&sarama.ConsumerMessage{Value: []byte("nope")})
	assert.ErrorContains(t, err, "failed to unmarshal event")

	err = c.processMessage(encodeEvent(t, models.EventTypeCouponRedeemed, "coupons", nil))
	assert.ErrorContains(t, err, "handler for coupon.redeemed failed")

	assert.NoError(t, c.processMessage(encodeEvent(t, models.EventTypeOrderCreated, "orders", nil)), "events without a handler are skipped")
}

func TestConsumer_ConsumeClaim_StopsWhenSessionEnds(t *testing.T) {
	c := newQuietConsumer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &recordingSession{ctx: ctx}
	claim := &channelClaim{topic: "orders", msgs: make(chan *sarama.ConsumerMessage)}

	done := make(chan error, 1)
	go func() { done <- c.ConsumeClaim(session, claim) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not return after session end")
	}
	assert.Empty(t, session.marked)
}

func TestConsumer_StartRetriesAfterConsumeError(t *testing.T) {
	group := newFlakyGroup(1)
	c := newQuietConsumer(t, group)

	require.NoError(t, c.Start())
	assert.Eventually(t, func() bool { return group.consumeCalls() >= 2 }, 3*time.Second, 20*time.Millisecond)
	require.NoError(t, c.Stop())
	assert.True(t, group.closed)
}

func TestConsumer_StartWithoutGroup(t *testing.T) {
	c := newQuietConsumer(t, nil)
	assert.Error(t, c.Start())

	var nilConsumer *Consumer
	assert.NoError(t, nilConsumer.Stop())
}

func TestNewConsumer_UnreachableBrokers(t *testing.T) {
	log := logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
	cfg := &config.KafkaConfig{
		Brokers: []string{"localhost:0"},
		GroupID: "storefront",
		Topics:  config.Topics{Orders: "orders", Coupons: "coupons", Reviews: "reviews"},
	}
	_, err := NewConsumer(cfg, log)
	assert.Error(t, err)
}
