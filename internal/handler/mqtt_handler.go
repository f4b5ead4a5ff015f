package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ppg-screening/internal/config"
	"ppg-screening/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	TopicManualEntry   = "ppg/manual_entry"
	TopicSessionAction = "ppg/session_action"
	reportTopicPrefix  = "ppg/report/"
)

var subscribedTopics = []string{TopicManualEntry, TopicSessionAction}

// ReportTopic is where a user's reports are published.
func ReportTopic(userID string) string {
	return reportTopicPrefix + userID
}

func NewMessageHandler(processor *ScreeningProcessor, logger *zap.Logger) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		logger.Debug("mqtt message received", zap.String("topic", msg.Topic()), zap.Int("bytes", len(msg.Payload())))

		switch msg.Topic() {
		case TopicManualEntry:
			processor.HandleManualEntry(msg.Payload())
		case TopicSessionAction:
			processor.HandleSessionAction(msg.Payload())
		default:
			logger.Warn("unknown topic", zap.String("topic", msg.Topic()))
		}
	}
}

func InitializeMQTT(cfg *config.Config, processor *ScreeningProcessor, logger *zap.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetDefaultPublishHandler(NewMessageHandler(processor, logger))
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("connected to mqtt broker", zap.String("broker", cfg.MQTTBroker))
		subscribeToTopics(client, logger)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return client, nil
}

func subscribeToTopics(client mqtt.Client, logger *zap.Logger) {
	for _, topic := range subscribedTopics {
		token := client.Subscribe(topic, 1, nil)
		token.Wait()
		if err := token.Error(); err != nil {
			logger.Error("failed to subscribe", zap.String("topic", topic), zap.Error(err))
			continue
		}
		logger.Info("subscribed to topic", zap.String("topic", topic))
	}
}

// MQTTPublisher publishes report payloads to ppg/report/<userId>.
type MQTTPublisher struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
}

func NewMQTTPublisher(client mqtt.Client) *MQTTPublisher {
	return &MQTTPublisher{client: client, qos: 1, timeout: 5 * time.Second}
}

func (m *MQTTPublisher) Publish(ctx context.Context, p models.ReportPayload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	token := m.client.Publish(ReportTopic(p.UserID), m.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return fmt.Errorf("timed out publishing report for user %s", p.UserID)
	}
	return token.Error()
}
