// Package audit records operator-visible events. Recording is
// best-effort: a dead sink never fails the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"trust-service/internal/bucketing"
	"trust-service/internal/client"
	"trust-service/internal/util"
)

// Event is one audited state change.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Action    string    `json:"action"`
	UserID    uuid.UUID `json:"user_id"`
	ActorID   uuid.UUID `json:"actor_id,omitempty"`
	EntityID  uuid.UUID `json:"entity_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ActionCodeSent        = "verification.code_sent"
	ActionCodeVerified    = "verification.code_verified"
	ActionCodeRejected    = "verification.code_rejected"
	ActionUserBlocked     = "verification.user_blocked"
	ActionUserUnblocked   = "verification.user_unblocked"
	ActionIdentitySubmit  = "identity.submitted"
	ActionIdentityDecided = "identity.decided"
	ActionBankingSubmit   = "banking.submitted"
	ActionBankingDecided  = "banking.decided"
	ActionTxAppended      = "wallet.transaction_appended"
	ActionTxDecided       = "wallet.transaction_decided"
	ActionWithdrawCreated = "withdraw.created"
	ActionWithdrawDecided = "withdraw.decided"
	ActionPaymentCreated  = "payment.created"
	ActionPaymentSettled  = "payment.settled"
)

// Recorder fans events out to kafka, clickhouse and elasticsearch. Any
// sink may be nil; a fully nil recorder is valid and drops everything.
type Recorder struct {
	producer   *client.KafkaProducer
	clickhouse *client.ClickHouseClient
	es         *client.ESClient
	buckets    *bucketing.Manager
	topic      string
	index      string
}

func NewRecorder(producer *client.KafkaProducer, ch *client.ClickHouseClient, es *client.ESClient, buckets *bucketing.Manager, topic, index string) *Recorder {
	return &Recorder{
		producer:   producer,
		clickhouse: ch,
		es:         es,
		buckets:    buckets,
		topic:      topic,
		index:      index,
	}
}

// Record writes the event to every configured sink. Failures are logged
// and swallowed.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	// Events for one user land in one topic partition and one reporting
	// bucket so per-user history stays ordered.
	bucket := r.buckets.PartitionBucket(event.UserID)

	if r.producer != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			err = r.producer.ProduceMessage(ctx, r.topic, []byte(strconv.Itoa(bucket)), payload, nil)
		}
		if err != nil {
			util.Warn("failed to publish audit event",
				util.String("action", event.Action), util.ErrorField(err))
		}
	}

	if r.clickhouse != nil {
		err := r.clickhouse.Exec(ctx, `
			INSERT INTO audit_events (id, bucket, action, user_id, actor_id, entity_id, detail, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID.String(), bucket, event.Action, event.UserID.String(),
			event.ActorID.String(), event.EntityID.String(), event.Detail,
			event.CreatedAt)
		if err != nil {
			util.Warn("failed to store audit event",
				util.String("action", event.Action), util.ErrorField(err))
		}
	}

	if r.es != nil {
		res, err := r.es.IndexDocument(r.index, event.ID.String(), event)
		if err != nil {
			util.Warn("failed to index audit event",
				util.String("action", event.Action), util.ErrorField(err))
		} else {
			res.Body.Close()
		}
	}
}
