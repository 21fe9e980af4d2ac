// Package kafka 提供分配引擎的 Kafka 消息收发
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"

	"github.com/almoner-platform/almoner-allocation/internal/config"
	"github.com/almoner-platform/almoner-allocation/internal/metrics"
	"github.com/almoner-platform/almoner-allocation/internal/service"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

// Producer Kafka 生产者
type Producer struct {
	producer sarama.SyncProducer
	topics   config.KafkaTopicsConfig
	enabled  bool
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg *config.KafkaConfig) (*Producer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Partitioner = sarama.NewRoundRobinPartitioner
	sc.ClientID = cfg.ClientID

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}

	return &Producer{
		producer: producer,
		topics:   cfg.Topics,
		enabled:  true,
	}, nil
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// SetEnabled 启停生产者
func (p *Producer) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// SendAllocationEvent 发送分配生命周期事件
func (p *Producer) SendAllocationEvent(ctx context.Context, event *service.AllocationEventMessage) error {
	if !p.enabled {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.OrgID
	if key == "" {
		key = event.BatchID
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topics.AllocationEvents,
		Key:       sarama.StringEncoder(key),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.EventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send allocation event",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"error", err)
		return err
	}
	metrics.RecordKafkaMessage(p.topics.AllocationEvents, true)

	logger.Debug("allocation event sent",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition", partition,
		"offset", offset)

	return nil
}

// SendComplianceAlert 发送合规告警
func (p *Producer) SendComplianceAlert(ctx context.Context, alert *service.ComplianceAlertMessage) error {
	if !p.enabled {
		return nil
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topics.ComplianceAlerts,
		Key:       sarama.StringEncoder(alert.OrgID),
		Value:     sarama.ByteEncoder(data),
		Timestamp: time.Now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte("alert_type"), Value: []byte(alert.AlertType)},
			{Key: []byte("risk_level"), Value: []byte(alert.RiskLevel)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		logger.Error("failed to send compliance alert",
			"alert_id", alert.AlertID,
			"error", err)
		return err
	}
	metrics.RecordKafkaMessage(p.topics.ComplianceAlerts, true)

	logger.Debug("compliance alert sent",
		"alert_id", alert.AlertID,
		"partition", partition,
		"offset", offset)

	return nil
}

// AllocationEventCallback 创建分配事件回调函数
func (p *Producer) AllocationEventCallback() func(ctx context.Context, event *service.AllocationEventMessage) error {
	return func(ctx context.Context, event *service.AllocationEventMessage) error {
		return p.SendAllocationEvent(ctx, event)
	}
}

// ComplianceAlertCallback 创建合规告警回调函数
func (p *Producer) ComplianceAlertCallback() func(ctx context.Context, alert *service.ComplianceAlertMessage) error {
	return func(ctx context.Context, alert *service.ComplianceAlertMessage) error {
		return p.SendComplianceAlert(ctx, alert)
	}
}
