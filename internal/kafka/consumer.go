package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"

	"github.com/almoner-platform/almoner-allocation/internal/cache"
	"github.com/almoner-platform/almoner-allocation/internal/metrics"
	"github.com/almoner-platform/almoner-allocation/internal/repository"
	"github.com/almoner-platform/almoner-allocation/pkg/logger"
)

// Consumer Kafka 消费者，接收支付侧的捐赠结算并入账资金池
type Consumer struct {
	client    sarama.ConsumerGroup
	funds     cache.DonorFundRedisRepository
	donorRepo *repository.DonorRepository
	topic     string

	ready chan bool
	ctx   context.Context
	wg    sync.WaitGroup
}

// ConsumerConfig 消费者配置
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
}

// NewConsumer 创建 Kafka 消费者
func NewConsumer(
	cfg *ConsumerConfig,
	funds cache.DonorFundRedisRepository,
	donorRepo *repository.DonorRepository,
) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		client:    client,
		funds:     funds,
		donorRepo: donorRepo,
		topic:     cfg.Topic,
		ready:     make(chan bool),
	}, nil
}

// Start 启动消费者
func (c *Consumer) Start(ctx context.Context) error {
	c.ctx = ctx
	topics := []string{c.topic}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			if err := c.client.Consume(ctx, topics, c); err != nil {
				logger.Error("consumer error", "error", err)
			}
			if ctx.Err() != nil {
				return
			}
			c.ready = make(chan bool)
		}
	}()

	<-c.ready
	logger.Info("kafka consumer started", "topics", topics)
	return nil
}

// Stop 停止消费者
func (c *Consumer) Stop() error {
	c.wg.Wait()
	return c.client.Close()
}

// Setup 初始化
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	close(c.ready)
	return nil
}

// Cleanup 清理
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费消息
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := c.handleSettlement(c.ctx, message.Value); err != nil {
				logger.Error("failed to handle settlement",
					"topic", message.Topic,
					"error", err)
			}

			session.MarkMessage(message, "")

		case <-c.ctx.Done():
			return nil
		}
	}
}

// DonationSettlementMessage 捐赠结算消息
type DonationSettlementMessage struct {
	SettlementID string `json:"settlement_id"`
	DonorID      string `json:"donor_id"`
	Amount       string `json:"amount"`
	Source       string `json:"source"` // bank_transfer, card, recurring
	SettledAt    int64  `json:"settled_at"`
}

// handleSettlement 处理捐赠结算
// 资金池入账幂等，数据库镜像尽力而为，失败由下次 warmup 对齐
func (c *Consumer) handleSettlement(ctx context.Context, data []byte) error {
	var msg DonationSettlementMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}

	if msg.SettlementID == "" || msg.DonorID == "" {
		logger.Warn("settlement missing identifiers", "settlement_id", msg.SettlementID, "donor_id", msg.DonorID)
		return nil
	}
	amount, err := decimal.NewFromString(msg.Amount)
	if err != nil || !amount.IsPositive() {
		logger.Warn("settlement with invalid amount",
			"settlement_id", msg.SettlementID,
			"amount", msg.Amount)
		return nil
	}

	err = c.funds.CreditFromSettlement(ctx, &cache.CreditSettlementRequest{
		SettlementID: msg.SettlementID,
		DonorID:      msg.DonorID,
		Amount:       amount,
	})
	if err != nil {
		if errors.Is(err, cache.ErrRedisSettlementProcessed) {
			logger.Debug("settlement already processed", "settlement_id", msg.SettlementID)
			return nil
		}
		return err
	}

	if err := c.donorRepo.AdjustBalance(ctx, msg.DonorID, amount); err != nil {
		logger.Error("failed to mirror settlement to db",
			"settlement_id", msg.SettlementID,
			"donor_id", msg.DonorID,
			"error", err)
	}
	metrics.RecordKafkaMessage(c.topic, false)

	logger.Debug("donation settlement credited",
		"settlement_id", msg.SettlementID,
		"donor_id", msg.DonorID,
		"amount", msg.Amount,
		"source", msg.Source)

	return nil
}
