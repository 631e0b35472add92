package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/DanielPopoola/payment-orchestrator/internal/core/domain"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() domain.LifecycleEvent {
	p := &domain.Payment{
		ID:       uuid.New(),
		Amount:   decimal.NewFromInt(1000),
		Currency: "RUB",
		Status:   domain.StatusSuccess,
		Gateway:  "sandbox",
	}
	return domain.NewPaymentEvent(domain.LifecyclePaymentSucceeded, p, time.Now())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	event := testEvent()

	t.Run("sends keyed json message", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var got domain.LifecycleEvent
			if err := json.Unmarshal(val, &got); err != nil {
				return err
			}
			if got.PaymentID != event.PaymentID || got.Type != domain.LifecyclePaymentSucceeded {
				return errors.New("unexpected event body")
			}
			if got.Amount != "1000.00" {
				return errors.New("amount not rendered with minor digits")
			}
			return nil
		})

		pub := NewKafkaPublisher(producer, "payments.lifecycle", logger)
		require.NoError(t, pub.Publish(context.Background(), event))
		require.NoError(t, pub.Close())
	})

	t.Run("returns broker errors", func(t *testing.T) {
		producer := mocks.NewSyncProducer(t, nil)
		producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

		pub := NewKafkaPublisher(producer, "payments.lifecycle", logger)
		err := pub.Publish(context.Background(), event)
		assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
		require.NoError(t, pub.Close())
	})
}

func TestLogPublisher_Publish(t *testing.T) {
	pub := NewLogPublisher(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	assert.NoError(t, pub.Publish(context.Background(), testEvent()))
}
