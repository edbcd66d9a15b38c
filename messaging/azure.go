package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/clinops/config"
)

const (
	receiveBatch = 10
	sessionWait  = 2 * time.Second
)

type AzureClient struct {
	client *azservicebus.Client
}

func NewAzureClient(cfg config.AzureConfig) (*AzureClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, err
	}

	return &AzureClient{client: client}, nil
}

// Close releases the connection
func (a *AzureClient) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}

// StartConsumers accepts sessions on queueName until ctx ends. Messages of
// one session are handled in order; sessions run concurrently.
func (a *AzureClient) StartConsumers(ctx context.Context, queueName string, processor MessageProcessor) error {
	log.Info().Str("queue", queueName).Msg("Starting consumers")

	for {
		sessionReceiver, err := a.client.AcceptNextSessionForQueue(ctx, queueName, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				log.Debug().Msg("No session available, waiting...")
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(sessionWait):
				}
				continue
			}
			return err
		}

		log.Info().Str("session", sessionReceiver.SessionID()).Msg("Session received")

		go handleSession(ctx, sessionReceiver, processor)
	}
}

// sessionReceiver is the part of *azservicebus.SessionReceiver a session needs
type sessionReceiver interface {
	SessionID() string
	ReceiveMessages(ctx context.Context, maxMessages int, options *azservicebus.ReceiveMessagesOptions) ([]*azservicebus.ReceivedMessage, error)
	CompleteMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.CompleteMessageOptions) error
	AbandonMessage(ctx context.Context, message *azservicebus.ReceivedMessage, options *azservicebus.AbandonMessageOptions) error
	Close(ctx context.Context) error
}

func handleSession(ctx context.Context, receiver sessionReceiver, processor MessageProcessor) {
	defer func() {
		log.Info().Str("session", receiver.SessionID()).Msg("Closing session")
		if err := receiver.Close(context.WithoutCancel(ctx)); err != nil {
			log.Error().Err(err).Str("session", receiver.SessionID()).Msg("Error closing session")
		}
	}()

	for {
		messages, err := receiver.ReceiveMessages(ctx, receiveBatch, nil)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Str("session", receiver.SessionID()).Msg("Error receiving messages")
			}
			return
		}

		if len(messages) == 0 {
			return
		}

		log.Info().Int("count", len(messages)).Str("session", receiver.SessionID()).Msg("Received messages")

		for _, message := range messages {
			settle(ctx, receiver, message, processor.ProcessMessage(ctx, message))
		}
	}
}

// settle completes handled and permanently rejected messages and abandons
// the rest for redelivery
func settle(ctx context.Context, receiver sessionReceiver, message *azservicebus.ReceivedMessage, err error) {
	ctx = context.WithoutCancel(ctx)

	if err != nil && !Permanent(err) {
		log.Error().Err(err).Str("messageID", message.MessageID).Msg("Error processing message, abandoning")
		if err := receiver.AbandonMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("messageID", message.MessageID).Msg("Failed to abandon message")
		}
		return
	}

	if err != nil {
		log.Warn().Err(err).Str("messageID", message.MessageID).Msg("Message rejected")
	}
	if err := receiver.CompleteMessage(ctx, message, nil); err != nil {
		log.Error().Err(err).Str("messageID", message.MessageID).Msg("Failed to complete message")
	}
}
