package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/gearshare/service-reservation/internal/platform/kafka"
)

// SettlementService is the subset of the reservation service the settlement
// consumer drives. It is declared here (rather than importing the application
// package) to avoid an import cycle with internal/application.
type SettlementService interface {
	CompleteRefund(ctx context.Context, reservationID uuid.UUID) error
	CompleteClaim(ctx context.Context, reservationID uuid.UUID) error
}

// SettlementEventConsumer listens to settlement events and drives the
// corresponding reservation transitions.
type SettlementEventConsumer struct {
	consumer *kafka.Consumer
	service  SettlementService
	logger   *zap.Logger
}

// NewSettlementEventConsumer creates a new SettlementEventConsumer.
func NewSettlementEventConsumer(
	brokers []string,
	groupID string,
	service SettlementService,
	logger *zap.Logger,
) *SettlementEventConsumer {
	consumer := kafka.NewConsumer(brokers, groupID, TopicSettlementEvents, logger)
	return &SettlementEventConsumer{
		consumer: consumer,
		service:  service,
		logger:   logger,
	}
}

// Start begins consuming settlement events. This blocks until the context is cancelled.
func (c *SettlementEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Consume(ctx, c.handleMessage)
}

// Close closes the underlying Kafka consumer.
func (c *SettlementEventConsumer) Close() error {
	return c.consumer.Close()
}

func (c *SettlementEventConsumer) handleMessage(ctx context.Context, msg kafkago.Message) error {
	var cloudEvent kafka.CloudEvent
	if err := json.Unmarshal(msg.Value, &cloudEvent); err != nil {
		c.logger.Error("failed to parse cloud event from settlement topic",
			zap.Error(err),
			zap.String("raw", string(msg.Value)),
		)
		return nil // Don't retry malformed messages
	}

	switch cloudEvent.Type {
	case SettlementRefundCompleted:
		return c.handleRefundCompleted(ctx, cloudEvent)
	case SettlementClaimSettled:
		return c.handleClaimSettled(ctx, cloudEvent)
	default:
		c.logger.Debug("ignoring unhandled settlement event type",
			zap.String("type", cloudEvent.Type),
		)
		return nil
	}
}

func (c *SettlementEventConsumer) handleRefundCompleted(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt RefundCompletedEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse RefundCompletedEvent data", zap.Error(err))
		return nil
	}

	c.logger.Info("processing refund completed event",
		zap.String("reservation_id", evt.ReservationID.String()),
		zap.String("refund_id", evt.RefundID.String()),
	)

	if err := c.service.CompleteRefund(ctx, evt.ReservationID); err != nil {
		c.logger.Error("failed to complete refund",
			zap.String("reservation_id", evt.ReservationID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (c *SettlementEventConsumer) handleClaimSettled(ctx context.Context, cloudEvent kafka.CloudEvent) error {
	var evt ClaimSettledEvent
	if err := cloudEvent.ParseData(&evt); err != nil {
		c.logger.Error("failed to parse ClaimSettledEvent data", zap.Error(err))
		return nil
	}

	c.logger.Info("processing claim settled event",
		zap.String("reservation_id", evt.ReservationID.String()),
		zap.String("claim_id", evt.ClaimID.String()),
	)

	if err := c.service.CompleteClaim(ctx, evt.ReservationID); err != nil {
		c.logger.Error("failed to complete claim",
			zap.String("reservation_id", evt.ReservationID.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
