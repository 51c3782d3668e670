package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

type LeadEventPublisher interface {
	PublishLeadCreated(ctx context.Context, ref entity.LeadRef) error
}

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQProducer struct {
	Ch publisher
}

func NewProducer(ch publisher) *RabbitMQProducer {
	return &RabbitMQProducer{Ch: ch}
}

func (p *RabbitMQProducer) PublishLeadCreated(ctx context.Context, ref entity.LeadRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	body, err := json.Marshal(usecase.LeadCreatedInput{LeadType: string(ref.Type), LeadID: ref.ID})
	if err != nil {
		return fmt.Errorf("encode lead event: %w", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("publish lead event: %w", err)
	}
	return nil
}
