//go:build integration

package main_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkamodule "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/gearshare/service-reservation/internal/adapters/paymentgw"
	"github.com/gearshare/service-reservation/internal/application"
	"github.com/gearshare/service-reservation/internal/domain/listing"
	reservationDomain "github.com/gearshare/service-reservation/internal/domain/reservation"
	reservationEvents "github.com/gearshare/service-reservation/internal/events"
	"github.com/gearshare/service-reservation/internal/platform/kafka"
	"github.com/gearshare/service-reservation/internal/repository"
)

// testInfra holds shared test infrastructure.
type testInfra struct {
	DB           *gorm.DB
	KafkaBrokers []string
	Cleanup      func()
}

// reservationStack holds wired-up reservation service components.
type reservationStack struct {
	Service         *application.ReservationService
	Consumer        *reservationEvents.SettlementEventConsumer
	CleanupProducer func()
}

// stubListingService serves a fixed pricing snapshot.
type stubListingService struct {
	snapshot *listing.PricingSnapshot
}

func (s *stubListingService) GetPricing(_ context.Context, _ uuid.UUID) (*listing.PricingSnapshot, error) {
	return s.snapshot, nil
}

// stubPaymentGateway confirms every token with a fixed amount.
type stubPaymentGateway struct {
	amount int64
}

func (s *stubPaymentGateway) Confirm(_ context.Context, _ string) (paymentgw.Confirmation, error) {
	return paymentgw.Confirmation{Success: true, Amount: s.amount, Receipt: "rcpt-test"}, nil
}

// setupContainers starts PostgreSQL and Kafka testcontainers and returns a connected GORM DB.
func setupContainers(t *testing.T) *testInfra {
	t.Helper()
	ctx := context.Background()

	// Start PostgreSQL container with log-based wait strategy.
	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test_reservation",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test_reservation sslmode=disable", pgHost, pgPort.Port())

	// Poll until GORM can actually connect and ping.
	var db *gorm.DB
	require.Eventually(t, func() bool {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			return false
		}
		sqlDB, err := db.DB()
		if err != nil {
			return false
		}
		return sqlDB.Ping() == nil
	}, 30*time.Second, 1*time.Second, "PostgreSQL not ready for connections")

	require.NoError(t, db.AutoMigrate(&repository.ReservationModel{}, &repository.ReservationLogModel{}))

	// Start Kafka container using confluent-local (supports KRaft natively).
	kafkaContainer, err := kafkamodule.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err, "failed to start Kafka container")

	kafkaBrokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err, "failed to get Kafka brokers")

	// Pre-create required topics.
	createTopics(t, kafkaBrokers, reservationEvents.TopicReservationEvents, reservationEvents.TopicSettlementEvents)

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate Kafka container: %v", err)
		}
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}

	return &testInfra{
		DB:           db,
		KafkaBrokers: kafkaBrokers,
		Cleanup:      cleanup,
	}
}

// setupReservationStack wires up the full reservation service stack with
// stubbed collaborators.
func setupReservationStack(t *testing.T, db *gorm.DB, brokers []string) *reservationStack {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	reservationRepo := repository.NewGormReservationRepository(db)
	calc := reservationDomain.NewStandardCalculator()
	producer := kafka.NewProducer(brokers, logger)

	listings := &stubListingService{snapshot: &listing.PricingSnapshot{
		ListingID:     uuid.New(),
		OwnerID:       uuid.New(),
		OwnerNickname: "test-host",
		Fee:           10000,
		Deposit:       5000,
		Currency:      "KRW",
		ReceiveMethod: listing.PolicyEither,
		ReturnMethod:  listing.PolicyEither,
	}}
	payments := &stubPaymentGateway{amount: 35000}

	svc := application.NewReservationService(reservationRepo, listings, payments, calc, producer, logger)

	groupID := fmt.Sprintf("test-reservation-%s", uuid.New().String()[:8])
	consumer := reservationEvents.NewSettlementEventConsumer(brokers, groupID, svc, logger)

	return &reservationStack{
		Service:         svc,
		Consumer:        consumer,
		CleanupProducer: func() { _ = producer.Close() },
	}
}

// seedReservationInPendingRefund inserts a reservation awaiting settlement,
// together with a consistent log trail.
func seedReservationInPendingRefund(t *testing.T, db *gorm.DB, reservationID, guestID, hostID uuid.UUID) {
	t.Helper()
	now := time.Now().UTC()
	paid := now.Add(-96 * time.Hour)
	rented := now.Add(-72 * time.Hour)
	returned := now.Add(-2 * time.Hour)

	optionIDs, _ := json.Marshal([]uuid.UUID{})
	quote, _ := json.Marshal(map[string]interface{}{
		"days": 3, "rental_fee": 30000, "deposit_total": 5000,
		"total_amount": 35000, "currency": "KRW",
	})

	model := repository.ReservationModel{
		ID:                reservationID,
		ListingID:         uuid.New(),
		GuestID:           guestID,
		HostID:            hostID,
		Status:            "pending_refund",
		ReceiveMethod:     "direct",
		ReturnMethod:      "direct",
		PeriodStart:       rented.Truncate(24 * time.Hour),
		PeriodEnd:         returned.Truncate(24 * time.Hour),
		SelectedOptionIDs: optionIDs,
		Quote:             quote,
		PaidAt:            &paid,
		RentedAt:          &rented,
		ReturnedAt:        &returned,
		Version:           8,
		CreatedAt:         paid,
		UpdatedAt:         now,
	}
	require.NoError(t, db.Create(&model).Error, "failed to seed reservation")

	statuses := []struct {
		status string
		actor  uuid.UUID
		name   string
	}{
		{"pending_approval", guestID, "test-guest"},
		{"pending_payment", hostID, "test-host"},
		{"pending_pickup", guestID, "test-guest"},
		{"renting", hostID, "test-host"},
		{"pending_return", guestID, "test-guest"},
		{"return_completed", hostID, "test-host"},
		{"inspecting_return", hostID, "test-host"},
		{"pending_refund", hostID, "test-host"},
	}
	for i, s := range statuses {
		log := repository.ReservationLogModel{
			ID:            uuid.New(),
			ReservationID: reservationID,
			Seq:           i + 1,
			Status:        s.status,
			ActorID:       s.actor,
			ActorNickname: s.name,
			CreatedAt:     paid.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, db.Create(&log).Error, "failed to seed reservation log")
	}
}

// publishTestEvent publishes a CloudEvent to Kafka.
func publishTestEvent(t *testing.T, brokers []string, topic, source, eventType string, data interface{}) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	producer := kafka.NewProducer(brokers, logger)
	defer func() { _ = producer.Close() }()

	ce, err := kafka.NewCloudEvent(source, eventType, data)
	require.NoError(t, err, "failed to create cloud event")

	err = producer.PublishEvent(context.Background(), topic, ce)
	require.NoError(t, err, "failed to publish event")
}

// waitForReservationStatus polls the reservations table until the status matches.
func waitForReservationStatus(t *testing.T, db *gorm.DB, reservationID uuid.UUID, expectedStatus string, timeout time.Duration) repository.ReservationModel {
	t.Helper()
	var result repository.ReservationModel
	require.Eventually(t, func() bool {
		var model repository.ReservationModel
		err := db.Where("id = ?", reservationID).First(&model).Error
		if err != nil {
			return false
		}
		if model.Status == expectedStatus {
			result = model
			return true
		}
		return false
	}, timeout, 200*time.Millisecond, "reservation did not transition to %s", expectedStatus)
	return result
}

// consumeOneEvent reads from a Kafka topic until it finds an event of the expected type.
func consumeOneEvent(t *testing.T, brokers []string, topic, expectedType string, timeout time.Duration) kafka.CloudEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	groupID := fmt.Sprintf("test-assert-%s", uuid.New().String()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafkago.FirstOffset,
	})
	defer func() { _ = reader.Close() }()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				t.Fatalf("timed out waiting for event type %q on topic %q", expectedType, topic)
			}
			continue
		}
		ce, err := kafka.ParseCloudEvent(msg.Value)
		if err != nil {
			continue
		}
		if ce.Type == expectedType {
			return ce
		}
	}
}

// createTopics pre-creates Kafka topics so producers don't fail with "Unknown Topic".
func createTopics(t *testing.T, brokers []string, topics ...string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers[0])
	require.NoError(t, err, "failed to dial Kafka for topic creation")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "failed to get Kafka controller")

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err, "failed to connect to Kafka controller")
	defer controllerConn.Close()

	topicConfigs := make([]kafkago.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafkago.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}
	err = controllerConn.CreateTopics(topicConfigs...)
	require.NoError(t, err, "failed to create Kafka topics")

	// Give Kafka a moment to propagate topic metadata.
	time.Sleep(1 * time.Second)
}
