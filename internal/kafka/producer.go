package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const eventSource = "storefront"

// Producer публикует доменные события в Kafka
type Producer struct {
	producer sarama.SyncProducer
	log      *logger.Logger
	topics   *config.Topics
}

// NewProducer создает синхронного продюсера
func NewProducer(cfg *config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	log.WithField("brokers", cfg.Brokers).Info("Kafka producer created")

	topics := cfg.Topics
	return &Producer{
		producer: producer,
		log:      log,
		topics:   &topics,
	}, nil
}

// Close закрывает продюсера
func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

// PublishOrderCreated публикует событие создания заказа
func (p *Producer) PublishOrderCreated(order *models.Order) error {
	event, err := newEvent(models.EventTypeOrderCreated, models.OrderCreatedData{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		CouponID:    order.CouponID,
	})
	if err != nil {
		return err
	}
	return p.publishEventWithKey(p.topics.Orders, order.OrderNumber, event)
}

// PublishOrderStatusChanged публикует смену статусов заказа
func (p *Producer) PublishOrderStatusChanged(before, after *models.Order) error {
	event, err := newEvent(models.EventTypeOrderStatusChanged, models.OrderStatusChangedData{
		OrderNumber:      after.OrderNumber,
		OldStatus:        before.Status,
		NewStatus:        after.Status,
		OldPaymentStatus: before.PaymentStatus,
		NewPaymentStatus: after.PaymentStatus,
	})
	if err != nil {
		return err
	}
	return p.publishEventWithKey(p.topics.Orders, after.OrderNumber, event)
}

// PublishCouponRedeemed публикует использование купона в заказе
func (p *Producer) PublishCouponRedeemed(coupon *models.Coupon, orderNumber string, discount decimal.Decimal) error {
	event, err := newEvent(models.EventTypeCouponRedeemed, models.CouponRedeemedData{
		CouponID:    coupon.ID,
		Code:        coupon.Code,
		OrderNumber: orderNumber,
		Discount:    discount,
	})
	if err != nil {
		return err
	}
	return p.publishEventWithKey(p.topics.Coupons, coupon.Code, event)
}

// PublishReviewApproved публикует одобрение отзыва
func (p *Producer) PublishReviewApproved(review *models.Review) error {
	event, err := newEvent(models.EventTypeReviewApproved, models.ReviewApprovedData{
		ReviewID:  review.ID,
		ProductID: review.ProductID,
	})
	if err != nil {
		return err
	}
	return p.publishEventWithKey(p.topics.Reviews, fmt.Sprintf("product-%d", review.ProductID), event)
}

func newEvent(eventType models.EventType, data interface{}) (models.Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return models.Event{
		ID:        uuid.New(),
		Type:      eventType,
		Source:    eventSource,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	}, nil
}

// publishEventWithKey отправляет событие; ключ определяет партицию,
// поэтому события одного заказа или товара читаются по порядку.
func (p *Producer) publishEventWithKey(topic, key string, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	metrics.EventsPublished.WithLabelValues(topic, metrics.Result(err)).Inc()
	if err != nil {
		p.log.WithError(err).WithFields(map[string]interface{}{
			"topic":      topic,
			"event_type": event.Type,
			"event_id":   event.ID,
		}).Error("Failed to publish event")
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.WithFields(map[string]interface{}{
		"topic":      topic,
		"event_type": event.Type,
		"event_id":   event.ID,
		"partition":  partition,
		"offset":     offset,
	}).Debug("Event published")

	return nil
}
