package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Contract event types.
const (
	EventContractCreated   = "contract.created"
	EventContractUpdated   = "contract.updated"
	EventContractDeleted   = "contract.deleted"
	EventContractProcessed = "contract.processed"
)

// ContractEvent is published after a contract changes.
type ContractEvent struct {
	Type       string    `json:"type"`
	ContractID string    `json:"contract_id"`
	CompanyID  string    `json:"company_id"`
	AppID      string    `json:"app_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers contract events. Delivery failures never fail the
// operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, event ContractEvent)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, ContractEvent) {}

// PubSubNotifier publishes events to a Google Cloud Pub/Sub topic.
type PubSubNotifier struct {
	client  *pubsub.Client
	topic   *pubsub.Topic
	timeout time.Duration
	logger  *slog.Logger
}

func NewPubSubNotifier(ctx context.Context, projectID, topic, credentialsFile string, logger *slog.Logger) (*PubSubNotifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	logger.Info("pubsub client ready", "project_id", projectID, "topic", topic)
	return &PubSubNotifier{
		client:  client,
		topic:   client.Topic(topic),
		timeout: 10 * time.Second,
		logger:  logger,
	}, nil
}

func (n *PubSubNotifier) Notify(ctx context.Context, event ContractEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to encode contract event", "type", event.Type, "error", err)
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	result := n.topic.Publish(pctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":       event.Type,
			"company_id": event.CompanyID,
		},
	})
	id, err := result.Get(pctx)
	if err != nil {
		n.logger.Warn("failed to publish contract event", "type", event.Type, "contract_id", event.ContractID, "error", err)
		return
	}
	n.logger.Debug("contract event published", "type", event.Type, "contract_id", event.ContractID, "message_id", id)
}

func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
