package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	"storefront/internal/models"

	"github.com/IBM/sarama"
)

// EventHandler обрабатывает событие определённого типа
type EventHandler func(ctx context.Context, event *models.Event) error

// Consumer читает события из группы потребителей Kafka
type Consumer struct {
	consumer sarama.ConsumerGroup
	log      *logger.Logger
	handlers map[models.EventType]EventHandler
	mu       sync.RWMutex
	topics   []string
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewConsumer создает потребителя для всех топиков витрины
func NewConsumer(cfg *config.KafkaConfig, log *logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	var topics []string
	for _, topic := range []string{cfg.Topics.Orders, cfg.Topics.Coupons, cfg.Topics.Reviews} {
		if topic != "" {
			topics = append(topics, topic)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	log.WithFields(map[string]interface{}{
		"group_id": cfg.GroupID,
		"topics":   topics,
	}).Info("Kafka consumer created")

	return &Consumer{
		consumer: group,
		log:      log,
		handlers: make(map[models.EventType]EventHandler),
		topics:   topics,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// NewTestConsumer создает потребителя поверх готовой группы
func NewTestConsumer(group sarama.ConsumerGroup, log *logger.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		consumer: group,
		log:      log,
		handlers: make(map[models.EventType]EventHandler),
		topics:   []string{"test"},
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler регистрирует обработчик для типа события
func (c *Consumer) RegisterHandler(eventType models.EventType, handler EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[models.EventType]EventHandler)
	}
	c.handlers[eventType] = handler
}

// Handler возвращает обработчик события
func (c *Consumer) Handler(eventType models.EventType) EventHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers[eventType]
}

// HandlerCount возвращает количество обработчиков
func (c *Consumer) HandlerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers)
}

// Start запускает чтение в фоне
func (c *Consumer) Start() error {
	if c.consumer == nil {
		return fmt.Errorf("consumer group is not initialized")
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.consumer.Consume(c.ctx, c.topics, c); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				c.log.WithError(err).Error("Kafka consume failed")
				time.Sleep(time.Second)
			}
			if c.ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.log.WithError(err).Warn("Kafka consumer error")
		}
	}()

	c.log.WithField("topics", c.topics).Info("Kafka consumer started")
	return nil
}

// Stop останавливает чтение и закрывает группу
func (c *Consumer) Stop() error {
	if c == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.consumer != nil {
		err = c.consumer.Close()
	}
	c.wg.Wait()
	return err
}

// Setup вызывается перед началом сессии
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается после завершения сессии
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции.
// Ошибка обработчика логируется, смещение всё равно фиксируется.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.processMessage(msg); err != nil {
				c.log.WithError(err).WithFields(map[string]interface{}{
					"topic":     msg.Topic,
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Error("Failed to process Kafka message")
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) processMessage(msg *sarama.ConsumerMessage) error {
	var event models.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	handler := c.Handler(event.Type)
	if handler == nil {
		c.log.WithField("event_type", event.Type).Debug("No handler for event type")
		return nil
	}

	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err := handler(ctx, &event)
	metrics.EventsConsumed.WithLabelValues(string(event.Type), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("handler for %s failed: %w", event.Type, err)
	}

	c.log.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"event_id":   event.ID,
	}).Debug("Event processed")
	return nil
}
