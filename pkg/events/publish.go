package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// PublisherManager forwards events to the watermill publishers subscribed to
// the event's topic, stamping each message with a sequence number in the order
// Publish was called.
type PublisherManager struct {
	Publishers     map[string][]message.Publisher
	sequenceNumber uint64
	mutex          sync.Mutex
}

var _ Sink = (*PublisherManager)(nil)

func NewPublisherManager() *PublisherManager {
	return &PublisherManager{
		Publishers: make(map[string][]message.Publisher),
	}
}

func (s *PublisherManager) SubscribePublisher(topic string, pub message.Publisher) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Publishers[topic] = append(s.Publishers[topic], pub)
}

func (s *PublisherManager) Publish(e *Event) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	topic := e.Topic()
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", s.sequenceNumber))
	s.sequenceNumber++

	for _, pub := range s.Publishers[topic] {
		if err := pub.Publish(topic, msg); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("failed to publish")
		}
	}

	return nil
}

// PublishBlind publishes and only logs failures.
func PublishBlind(sink Sink, e *Event) {
	if sink == nil {
		return
	}
	if err := sink.Publish(e); err != nil {
		log.Warn().Err(err).Str("type", string(e.Type)).Msg("failed to publish event")
	}
}
