// Package notify publishes executed trades to downstream consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xtrntr/fxdesk/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// TradeEvent is the message written for every published trade
type TradeEvent struct {
	TradeID   string    `json:"tradeId"`
	UserID    string    `json:"userId"`
	Pair      string    `json:"pair"`
	Side      string    `json:"side"`
	Amount    float64   `json:"amount"`
	Price     float64   `json:"price"`
	Notional  float64   `json:"notional"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTradeEvent builds the event for trade
func NewTradeEvent(trade models.Trade) TradeEvent {
	return TradeEvent{
		TradeID:   trade.ID,
		UserID:    trade.UserID,
		Pair:      trade.Pair,
		Side:      string(trade.Side),
		Amount:    trade.Amount,
		Price:     trade.Price,
		Notional:  trade.Amount * trade.Price,
		Timestamp: trade.Timestamp,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes trade events to a Kafka topic, keyed by user so a
// user's trades stay on one partition
type KafkaPublisher struct {
	writer    messageWriter
	threshold float64
	log       *logrus.Logger
}

// NewKafkaPublisher creates a publisher for topic. Trades with a notional
// below threshold are not published.
func NewKafkaPublisher(brokers []string, topic string, threshold float64, log *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger:  kafka.LoggerFunc(log.Errorf),
	}

	log.WithFields(logrus.Fields{"topic": topic, "brokers": brokers}).Info("Kafka publisher initialized")

	return &KafkaPublisher{writer: writer, threshold: threshold, log: log}
}

// TradeExecuted publishes trade if its notional reaches the threshold
func (p *KafkaPublisher) TradeExecuted(ctx context.Context, trade models.Trade) error {
	event := NewTradeEvent(trade)
	if event.Notional < p.threshold {
		p.log.WithField("trade_id", trade.ID).Debug("Trade below notification threshold, skipping")
		return nil
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(trade.UserID),
		Value: value,
		Time:  trade.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish trade event: %w", err)
	}

	p.log.WithFields(logrus.Fields{"trade_id": trade.ID, "notional": event.Notional}).Debug("Published trade event")
	return nil
}

// Close flushes pending messages
func (p *KafkaPublisher) Close() error {
	p.log.Info("Closing Kafka publisher")
	return p.writer.Close()
}

// NopPublisher drops every trade. It is used when no brokers are configured.
type NopPublisher struct{}

// TradeExecuted discards trade
func (NopPublisher) TradeExecuted(context.Context, models.Trade) error { return nil }

// Close does nothing
func (NopPublisher) Close() error { return nil }
