package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// EventRouter bundles an in-process gochannel pub/sub with a watermill router
// running the handlers that consume it.
type EventRouter struct {
	logger       watermill.LoggerAdapter
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	router       *message.Router
	blockPublish bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

// WithBlockingPublish makes Publish wait until every subscriber acked the
// message. Publishers running on the consumer's goroutine must not use it.
func WithBlockingPublish(block bool) EventRouterOption {
	return func(r *EventRouter) {
		r.blockPublish = block
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger: watermill.NopLogger{},
	}

	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: ret.blockPublish,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}
	ret.router = router

	return ret, nil
}

// Sink returns a PublisherManager publishing into this router on every topic.
func (e *EventRouter) Sink() *PublisherManager {
	pm := NewPublisherManager()
	pm.SubscribePublisher(TopicViewer, e.Publisher)
	pm.SubscribePublisher(TopicSession, e.Publisher)
	return pm
}

// AddEventHandler registers a handler receiving decoded events of a topic.
// Undecodable payloads are logged and acked.
func (e *EventRouter) AddEventHandler(name string, topic string, f func(ctx context.Context, ev *Event) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, func(msg *message.Message) error {
		ev, err := NewEventFromJson(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.UUID).Msg("could not parse event")
			return nil
		}
		return f(msg.Context(), ev)
	})
}

func (e *EventRouter) Close() error {
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	return nil
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}
