package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

// ServiceBusClient is an interface for Azure Service Bus operations
type ServiceBusClient interface {
	SendMessage(ctx context.Context, body interface{}) error
	ProcessMessages(ctx context.Context, handler MessageHandler) error
	Close() error
}

// MessageHandler processes one received Service Bus message
type MessageHandler func(ctx context.Context, message *azservicebus.ReceivedMessage) error

// serviceBusClient implements the ServiceBusClient interface
type serviceBusClient struct {
	client     *azservicebus.Client
	sender     *azservicebus.Sender
	queueName  string
	clientType string
}

// disabledServiceBusClient is selected when no connection string is
// configured; sends are logged and dropped, receiving is unavailable
type disabledServiceBusClient struct {
	queueName  string
	clientType string
}

// NewServiceBusClient creates a new Azure Service Bus client for the given
// queue. An empty connection string yields a disabled client rather than
// an error, so missing stream credentials never fail startup.
func NewServiceBusClient(connectionString, queueName, clientType string) (ServiceBusClient, error) {
	if connectionString == "" {
		log.Warn().
			Str("queue", queueName).
			Str("client", clientType).
			Msg("Service Bus connection string not provided, messaging disabled for this queue")
		return &disabledServiceBusClient{queueName: queueName, clientType: clientType}, nil
	}

	// Create the Service Bus client
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	// Create a sender for the queue
	sender, err := client.NewSender(queueName, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &serviceBusClient{
		client:     client,
		sender:     sender,
		queueName:  queueName,
		clientType: clientType,
	}, nil
}

// SendMessage sends a message to the Service Bus queue
func (s *serviceBusClient) SendMessage(ctx context.Context, body interface{}) error {
	// Convert the body to JSON
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message body: %w", err)
	}

	// Create the message
	msg := &azservicebus.Message{
		Body: data,
		ApplicationProperties: map[string]interface{}{
			"source": s.clientType,
			"time":   time.Now().UTC().Format(time.RFC3339),
		},
	}

	// Send the message
	return s.sender.SendMessage(ctx, msg, nil)
}

// ProcessMessages receives messages from the queue in batches and hands
// each one to the handler. Messages are completed on success and abandoned
// back to the queue on handler error.
func (s *serviceBusClient) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	receiver, err := s.client.NewReceiverForQueue(s.queueName, nil)
	if err != nil {
		return fmt.Errorf("failed to create Service Bus receiver: %w", err)
	}
	defer func() {
		if err := receiver.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error closing Service Bus receiver")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		messages, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("queue", s.queueName).Msg("Error receiving messages")
			continue
		}

		for _, message := range messages {
			if err := handler(ctx, message); err != nil {
				log.Error().Err(err).Str("message_id", message.MessageID).Msg("Error processing message")
				// Return the message to the queue
				if err := receiver.AbandonMessage(context.Background(), message, nil); err != nil {
					log.Error().Err(err).Msgf("(AbandonMessage) err: %v", err)
				}
				continue
			}

			if err := receiver.CompleteMessage(context.Background(), message, nil); err != nil {
				log.Error().Err(err).Msgf("(CompleteMessage) err: %v", err)
			}
		}
	}
}

// Close closes the Service Bus client
func (s *serviceBusClient) Close() error {
	// Close the sender
	if s.sender != nil {
		if err := s.sender.Close(context.Background()); err != nil {
			return err
		}
	}

	// Close the client
	if s.client != nil {
		return s.client.Close(context.Background())
	}

	return nil
}

// SendMessage implementation for the disabled client
func (d *disabledServiceBusClient) SendMessage(ctx context.Context, body interface{}) error {
	log.Debug().
		Str("queue", d.queueName).
		Str("client", d.clientType).
		Interface("body", body).
		Msg("Messaging disabled, message dropped")
	return nil
}

// ProcessMessages implementation for the disabled client
func (d *disabledServiceBusClient) ProcessMessages(ctx context.Context, handler MessageHandler) error {
	return fmt.Errorf("messaging disabled for queue %s, cannot receive", d.queueName)
}

// Close implementation for the disabled client
func (d *disabledServiceBusClient) Close() error {
	return nil
}
