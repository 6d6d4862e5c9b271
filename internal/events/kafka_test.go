package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	at := time.Date(2024, 3, 1, 14, 30, 15, 999, time.FixedZone("X", 3600))
	e := New(TypeTradeExecuted, at, map[string]string{"symbol": "X"})

	if e.EventID == "" {
		t.Error("expected an event id")
	}
	if e.Type != TypeTradeExecuted {
		t.Errorf("Type = %q", e.Type)
	}
	if e.Timestamp != "2024-03-01T13:30:15Z" {
		t.Errorf("Timestamp = %q, want UTC to the second", e.Timestamp)
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "ledger.events" {
			t.Errorf("topic = %q", msg.Topic)
		}
		key, _ := msg.Key.Encode()
		if string(key) != "X" {
			t.Errorf("key = %q, want X", key)
		}
		value, _ := msg.Value.Encode()
		var got struct {
			Event string            `json:"event"`
			Data  map[string]string `json:"data"`
		}
		if err := json.Unmarshal(value, &got); err != nil {
			return err
		}
		if got.Event != TypeTradeExecuted || got.Data["price"] != "10.00" {
			t.Errorf("payload = %s", value)
		}
		if len(msg.Headers) == 0 || string(msg.Headers[0].Value) != TypeTradeExecuted {
			t.Errorf("headers = %v", msg.Headers)
		}
		return nil
	})

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	p := NewKafkaPublisherWithProducer(producer, "ledger.events", nil, metrics)

	err := p.Publish(context.Background(), "X", New(TypeTradeExecuted, time.Now(), map[string]string{"price": "10.00"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues(TypeTradeExecuted, "success")); got != 1 {
		t.Errorf("success count = %v, want 1", got)
	}
}

func TestKafkaPublisher_PublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	errBroker := errors.New("broker down")
	producer.ExpectSendMessageAndFail(errBroker)

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	p := NewKafkaPublisherWithProducer(producer, "ledger.events", nil, metrics)

	err := p.Publish(context.Background(), "X", New(TypeOrderFailed, time.Now(), nil))
	if !errors.Is(err, errBroker) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if got := testutil.ToFloat64(metrics.PublishTotal.WithLabelValues(TypeOrderFailed, "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}

func TestKafkaPublisher_CancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()
	p := NewKafkaPublisherWithProducer(producer, "ledger.events", nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Publish(ctx, "X", New(TypeOfferPlaced, time.Now(), nil)); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "ledger.events", nil, nil); err == nil {
		t.Error("expected an error without brokers")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.Publish(context.Background(), "X", New(TypeOfferPlaced, time.Now(), nil)); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
