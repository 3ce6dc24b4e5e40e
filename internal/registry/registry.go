// Package registry holds the shared mapping from session to subscribed topics.
//
// Consistency: each session's topic set is guarded by its own lock and is
// only mutated by that session's handler. Publish walks the entries without a
// registry-wide lock, so a Register or Leave racing with an in-flight Publish
// may or may not be observed by it. Every entry is read consistently on its
// own; the registry as a whole is not snapshot-isolated.
package registry

import (
	"sort"
	"sync"

	e "github.com/life-stream-dev/life-stream-go-chat-broker/internal/errors"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-chat-broker/internal/protocol"
)

// Subscriber is the registry's view of a session: a stable identity and an
// outbound channel for serialised lines.
type Subscriber interface {
	ID() string
	Deliver(line string) error
}

type entry struct {
	subscriber Subscriber
	mu         sync.RWMutex
	topics     map[string]struct{}
}

func (en *entry) has(topic string) bool {
	en.mu.RLock()
	defer en.mu.RUnlock()
	_, ok := en.topics[topic]
	return ok
}

type TopicRegistry struct {
	entries sync.Map // session id -> *entry
}

func New() *TopicRegistry {
	return &TopicRegistry{}
}

// Add creates an empty entry for s. It returns false if an entry with the
// same identity already exists.
func (r *TopicRegistry) Add(s Subscriber) bool {
	_, loaded := r.entries.LoadOrStore(s.ID(), &entry{
		subscriber: s,
		topics:     make(map[string]struct{}),
	})
	if !loaded {
		logger.DebugF("[%s] Registry entry created", s.ID())
	}
	return !loaded
}

func (r *TopicRegistry) lookup(s Subscriber) (*entry, bool) {
	value, ok := r.entries.Load(s.ID())
	if !ok {
		return nil, false
	}
	return value.(*entry), true
}

// Register adds topic to the session's set. It returns false when the topic
// is already present or the session has no entry.
func (r *TopicRegistry) Register(s Subscriber, topic string) bool {
	en, ok := r.lookup(s)
	if !ok {
		return false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if _, exists := en.topics[topic]; exists {
		return false
	}
	en.topics[topic] = struct{}{}
	return true
}

// Leave removes topic from the session's set. It returns false when the
// topic was not present.
func (r *TopicRegistry) Leave(s Subscriber, topic string) bool {
	en, ok := r.lookup(s)
	if !ok {
		return false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	if _, exists := en.topics[topic]; !exists {
		return false
	}
	delete(en.topics, topic)
	return true
}

// TopicsOf returns a sorted snapshot of the session's topics, empty if none.
func (r *TopicRegistry) TopicsOf(s Subscriber) []string {
	en, ok := r.lookup(s)
	if !ok {
		return []string{}
	}
	en.mu.RLock()
	topics := make([]string, 0, len(en.topics))
	for topic := range en.topics {
		topics = append(topics, topic)
	}
	en.mu.RUnlock()
	sort.Strings(topics)
	return topics
}

// Remove deletes the session's entry. Removing an absent entry, or one held
// by a different subscriber under the same id, is a no-op.
func (r *TopicRegistry) Remove(s Subscriber) {
	en, ok := r.lookup(s)
	if !ok || en.subscriber != s {
		return
	}
	if r.entries.CompareAndDelete(s.ID(), en) {
		logger.DebugF("[%s] Registry entry removed", s.ID())
	}
}

// Publish delivers msg to every session whose topic set contains msg.Topic
// at the moment its entry is visited, the publisher included when it is
// subscribed. A failed delivery is logged and does not stop the fan-out.
// The returned ids are the sessions a delivery was attempted to.
func (r *TopicRegistry) Publish(msg protocol.Reply) []string {
	msg.Type = protocol.Forwarded
	line := msg.Encode()

	var attempted []string
	r.entries.Range(func(_, value any) bool {
		en := value.(*entry)
		if !en.has(msg.Topic) {
			return true
		}
		id := en.subscriber.ID()
		attempted = append(attempted, id)
		if err := en.subscriber.Deliver(line); err != nil {
			logger.WarnF("%v", &e.DeliveryError{Topic: msg.Topic, Subscriber: id, Err: err})
		}
		return true
	})
	return attempted
}

// Len reports the number of live entries.
func (r *TopicRegistry) Len() int {
	n := 0
	r.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
