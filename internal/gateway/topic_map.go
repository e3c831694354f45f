package gateway

import "sync"

// TopicMap tracks which sessions are subscribed to each conversation topic
type TopicMap struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Client // topic -> connId -> client
}

// NewTopicMap creates a new TopicMap
func NewTopicMap() *TopicMap {
	return &TopicMap{
		topics: make(map[string]map[string]*Client),
	}
}

// Add subscribes a client to a topic
func (m *TopicMap) Add(topic string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.topics[topic]
	if !ok {
		subs = make(map[string]*Client)
		m.topics[topic] = subs
	}
	subs[client.ConnId] = client
}

// Remove unsubscribes a client from a topic and reports whether it was subscribed
func (m *TopicMap) Remove(topic string, client *Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.topics[topic]
	if !ok {
		return false
	}
	if _, ok := subs[client.ConnId]; !ok {
		return false
	}
	delete(subs, client.ConnId)
	if len(subs) == 0 {
		delete(m.topics, topic)
	}
	return true
}

// Subscribers returns a snapshot of a topic's subscribers
func (m *TopicMap) Subscribers(topic string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	subs := m.topics[topic]
	clients := make([]*Client, 0, len(subs))
	for _, c := range subs {
		clients = append(clients, c)
	}
	return clients
}

// Count returns the number of subscribers of a topic
func (m *TopicMap) Count(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}
