package mqtt

import (
	"context"
	"fmt"
	"log"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"beeper/backend/internal/model"
	"beeper/backend/internal/service"
)

// RealPublisher publishes to an actual MQTT broker and, when given a
// CallHandler, listens for telephony updates.
type RealPublisher struct {
	client paho.Client
}

// NewRealPublisher connects to broker. onCall may be nil.
func NewRealPublisher(broker, clientID string, onCall CallHandler) (*RealPublisher, error) {
	will, _ := FormatStatusPayload("offline", time.Now())

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicStatus, string(will), 1, true)

	if onCall != nil {
		// Subscriptions do not survive a reconnect, so subscribe on every connect.
		opts.SetOnConnectHandler(func(c paho.Client) {
			token := c.Subscribe(TopicTelephony, 1, telephonyHandler(onCall))
			if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
				log.Printf("[mqtt] subscribe %s failed: %v", TopicTelephony, token.Error())
				return
			}
			log.Printf("[mqtt] subscribed to %s", TopicTelephony)
		})
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Printf("[mqtt] connection lost: %v", err)
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{client: client}, nil
}

func telephonyHandler(onCall CallHandler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		if err := DispatchCall(context.Background(), onCall, msg.Payload()); err != nil {
			log.Printf("[mqtt] telephony message on %s: %v", msg.Topic(), err)
		}
	}
}

func (p *RealPublisher) PublishEvent(event service.Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	return p.publish(TopicEvents, 0, false, payload)
}

func (p *RealPublisher) PublishStatus(status model.SchedulerStatus, at time.Time) error {
	payload, err := FormatStatusPayload(status, at)
	if err != nil {
		return fmt.Errorf("format status payload: %w", err)
	}
	return p.publish(TopicStatus, 1, true, payload)
}

func (p *RealPublisher) PublishSummary(summary Summary) error {
	payload, err := FormatSummaryPayload(summary)
	if err != nil {
		return fmt.Errorf("format summary payload: %w", err)
	}
	return p.publish(TopicSummary, 1, false, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
