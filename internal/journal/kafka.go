package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/amirphl/ml-trader/internal/risk"
	"github.com/amirphl/ml-trader/internal/utils"
)

// KafkaSink publishes trades and events as JSON messages. Delivery reports
// are drained in the background; a failed delivery is logged, the at-least-
// once guarantee comes from the trading loop retrying unacknowledged trades.
type KafkaSink struct {
	producer    *kafka.Producer
	tradesTopic string
	eventsTopic string
	done        chan struct{}
}

// NewKafkaSink connects to the broker and starts the delivery-report drain.
func NewKafkaSink(broker, tradesTopic, eventsTopic string) (*KafkaSink, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": broker,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	s := &KafkaSink{
		producer:    producer,
		tradesTopic: tradesTopic,
		eventsTopic: eventsTopic,
		done:        make(chan struct{}),
	}
	go s.drainDeliveryReports()
	utils.GetLogger().Infof("Journal | Kafka producer connected to %s", broker)
	return s, nil
}

func (s *KafkaSink) drainDeliveryReports() {
	defer close(s.done)
	for e := range s.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				utils.GetLogger().Errorf("Journal | Message delivery failed: %v", ev.TopicPartition.Error)
			}
		case kafka.Error:
			utils.GetLogger().Errorf("Journal | Kafka error: %v", ev)
		}
	}
}

func (s *KafkaSink) produce(topic string, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal journal payload: %w", err)
	}
	return s.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(key),
		Value:          value,
	}, nil)
}

func (s *KafkaSink) LogTrade(ctx context.Context, trade risk.ClosedTrade) error {
	return s.produce(s.tradesTopic, trade.Symbol, trade)
}

func (s *KafkaSink) LogEvent(ctx context.Context, event Event) error {
	return s.produce(s.eventsTopic, event.Type, event)
}

// Close flushes outstanding messages and shuts the producer down.
func (s *KafkaSink) Close() error {
	remaining := s.producer.Flush(5000)
	if remaining > 0 {
		utils.GetLogger().Warnf("Journal | %d messages unflushed at shutdown", remaining)
	}
	s.producer.Close()
	<-s.done
	return nil
}
