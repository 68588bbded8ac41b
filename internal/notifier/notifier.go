// Package notifier hands verification codes to a delivery channel. The
// service only needs to know the handoff succeeded; actual delivery is
// someone else's problem.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trust-service/internal/client"
	"trust-service/internal/util"
)

// Notifier delivers a verification code to a phone number.
type Notifier interface {
	Send(ctx context.Context, phone, code string) error
}

// KafkaNotifier publishes code dispatch requests to the SMS topic. A
// worker fleet downstream talks to the SMS provider.
type KafkaNotifier struct {
	producer *client.KafkaProducer
	topic    string
	timeout  time.Duration
}

func NewKafkaNotifier(producer *client.KafkaProducer, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		timeout:  5 * time.Second,
	}
}

type smsMessage struct {
	Phone  string    `json:"phone"`
	Code   string    `json:"code"`
	SentAt time.Time `json:"sent_at"`
}

func (n *KafkaNotifier) Send(ctx context.Context, phone, code string) error {
	payload, err := json.Marshal(smsMessage{Phone: phone, Code: code, SentAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal sms message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.producer.ProduceMessage(ctx, n.topic, []byte(phone), payload, nil); err != nil {
		return fmt.Errorf("failed to dispatch verification code: %w", err)
	}
	return nil
}

// LogNotifier writes the code to the log instead of sending it. Used in
// development when no broker is around.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, phone, code string) error {
	util.Info("verification code (dev delivery)",
		util.String("phone", phone),
		util.String("code", code),
	)
	return nil
}
