package queue

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xavierca1/quiz-mailer/internal/entity"
	"github.com/xavierca1/quiz-mailer/internal/usecase"
)

// LeadRegistrar files a pending notification for a lead.
type LeadRegistrar interface {
	Execute(ctx context.Context, ref entity.LeadRef) (bool, error)
}

// acknowledger is the part of amqp.Delivery the worker acts on.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type consumer interface {
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Worker consumes lead.created events and registers a notification for each.
type Worker struct {
	Channel  consumer
	Register LeadRegistrar
	Logger   *zap.Logger
}

func NewWorker(ch consumer, register LeadRegistrar, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{Channel: ch, Register: register, Logger: logger}
}

// Start blocks until ctx is cancelled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context, queueName string) error {
	msgs, err := w.Channel.Consume(queueName, "quiz-mailer", false, false, false, false, nil)
	if err != nil {
		return err
	}

	w.Logger.Info("lead event consumer started", zap.String("queue", queueName))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("lead event channel closed")
			}
			w.handle(ctx, d.Body, &d)
		}
	}
}

// handle acks registered events and dead-letters everything else. A lost
// event is picked up later by the orphan reconciler.
func (w *Worker) handle(ctx context.Context, body []byte, d acknowledger) {
	var input usecase.LeadCreatedInput
	if err := json.Unmarshal(body, &input); err != nil {
		w.Logger.Warn("malformed lead event", zap.Error(err))
		d.Nack(false, false)
		return
	}

	ref, err := input.ToLeadRef()
	if err != nil {
		w.Logger.Warn("invalid lead event", zap.Error(err))
		d.Nack(false, false)
		return
	}

	created, err := w.Register.Execute(ctx, ref)
	if err != nil {
		w.Logger.Error("lead registration failed", zap.Stringer("lead", ref), zap.Error(err))
		d.Nack(false, false)
		return
	}

	w.Logger.Debug("lead event handled", zap.Stringer("lead", ref), zap.Bool("registered", created))
	d.Ack(false)
}
