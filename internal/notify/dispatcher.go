package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/redis/go-redis/v9"

	"gigflow/internal/common/logger"
	"gigflow/internal/common/metrics"
	"gigflow/internal/models"
)

// DefaultChannel is the Redis pub/sub channel hire events travel on.
const DefaultChannel = "notifications.hire"

// TopicPublisher mirrors events to an integration topic. Satisfied by *aws.SNSClient.
type TopicPublisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

type DispatcherConfig struct {
	Channel        string
	PublishTimeout time.Duration
	TopicARN       string
}

// Dispatcher fans a committed hire out to its recipient. With a bus the
// event is published so every instance delivers to its own registry,
// otherwise it is delivered to the local registry directly.
type Dispatcher struct {
	config   DispatcherConfig
	registry *Registry
	bus      redis.Cmdable
	topic    TopicPublisher
	logger   logger.Logger
}

// NewDispatcher wires a dispatcher. bus and topic may be nil.
func NewDispatcher(config DispatcherConfig, registry *Registry, bus redis.Cmdable, topic TopicPublisher, log logger.Logger) *Dispatcher {
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	return &Dispatcher{
		config:   config,
		registry: registry,
		bus:      bus,
		topic:    topic,
		logger:   log,
	}
}

// Dispatch delivers event at most once per live subscription. The returned
// error only reports sink failures; callers log it and move on.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.HireEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode hire event: %w", err)
	}

	var errs []error
	if d.bus != nil {
		if err := d.publish(ctx, payload); err != nil {
			errs = append(errs, err)
			d.logger.Warn("Bus publish failed, delivering locally", map[string]interface{}{
				"eventId": event.ID,
				"error":   err,
			})
			d.deliverLocal(event)
		}
	} else {
		d.deliverLocal(event)
	}

	if d.topic != nil && d.config.TopicARN != "" {
		if err := d.mirror(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (d *Dispatcher) publish(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.PublishTimeout)
	defer cancel()

	if err := d.bus.Publish(ctx, d.config.Channel, string(payload)).Err(); err != nil {
		metrics.NotificationsDispatched.WithLabelValues("redis", "error").Inc()
		return fmt.Errorf("redis publish on %s: %w", d.config.Channel, err)
	}
	metrics.NotificationsDispatched.WithLabelValues("redis", "ok").Inc()
	return nil
}

func (d *Dispatcher) deliverLocal(event *models.HireEvent) {
	if n := d.registry.Deliver(event); n > 0 {
		metrics.NotificationsDispatched.WithLabelValues("local", "delivered").Inc()
		return
	}
	metrics.NotificationsDispatched.WithLabelValues("local", "dropped").Inc()
	d.logger.Debug("No live subscriber for hire event", map[string]interface{}{
		"eventId":     event.ID,
		"recipientId": event.RecipientID,
	})
}

func (d *Dispatcher) mirror(ctx context.Context, event *models.HireEvent, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, d.config.PublishTimeout)
	defer cancel()

	_, err := d.topic.Publish(ctx, &sns.PublishInput{
		TopicArn: awssdk.String(d.config.TopicARN),
		Message:  awssdk.String(string(payload)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(event.Type),
			},
			"recipientId": {
				DataType:    awssdk.String("String"),
				StringValue: awssdk.String(event.RecipientID),
			},
		},
	})
	if err != nil {
		metrics.NotificationsDispatched.WithLabelValues("sns", "error").Inc()
		d.logger.Warn("SNS mirror failed", map[string]interface{}{
			"eventId": event.ID,
			"error":   err,
		})
		return fmt.Errorf("sns publish: %w", err)
	}
	metrics.NotificationsDispatched.WithLabelValues("sns", "ok").Inc()
	return nil
}
