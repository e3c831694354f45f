package sdk

import (
	"sort"
	"sync"
)

// Timeline is the local copy of one conversation. Pushed and polled messages
// merge through the same path: a message id already present is discarded, so
// both delivery paths can run at once without duplicates.
//
// The watermark only moves when polled messages merge, so a message the push
// path dropped is still picked up by the next poll.
type Timeline struct {
	mu        sync.RWMutex
	ids       map[int64]struct{}
	messages  []*Message
	watermark int64
}

// NewTimeline creates an empty timeline with watermark 0
func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[int64]struct{})}
}

// Merge adds pushed messages and returns the ones that were new
func (t *Timeline) Merge(msgs ...*Message) []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.merge(msgs)
}

// MergePolled adds messages returned by a poll and advances the watermark to
// the latest of them. It never moves the watermark back.
func (t *Timeline) MergePolled(msgs []*Message) []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	added := t.merge(msgs)
	for _, m := range msgs {
		if m != nil && m.CreatedAt > t.watermark {
			t.watermark = m.CreatedAt
		}
	}
	return added
}

func (t *Timeline) merge(msgs []*Message) []*Message {
	var added []*Message
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if _, ok := t.ids[m.Id]; ok {
			continue
		}
		t.ids[m.Id] = struct{}{}
		t.messages = append(t.messages, m)
		added = append(added, m)
	}
	if len(added) > 0 {
		sort.SliceStable(t.messages, func(i, j int) bool {
			return t.messages[i].Before(t.messages[j])
		})
	}
	return added
}

// ApplyRead marks the messages listed in a read receipt as read. Only the
// listed ids change: a message that reached the timeline after the reader's
// update is not covered by the receipt and stays unread.
func (t *Timeline) ApplyRead(receipt *ReadReceipt) int {
	if receipt == nil || len(receipt.MessageIds) == 0 {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	only := make(map[int64]struct{}, len(receipt.MessageIds))
	for _, id := range receipt.MessageIds {
		only[id] = struct{}{}
	}

	changed := 0
	for i, m := range t.messages {
		if m.IsRead || m.ReceiverId != receipt.ReaderId {
			continue
		}
		if _, ok := only[m.Id]; !ok {
			continue
		}
		read := *m
		read.IsRead = true
		t.messages[i] = &read
		changed++
	}
	return changed
}

// Messages returns a snapshot ordered by (created_at, id)
func (t *Timeline) Messages() []*Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Watermark returns the created_at of the latest polled message
func (t *Timeline) Watermark() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.watermark
}

// Len returns the number of messages
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Contains reports whether a message id is present
func (t *Timeline) Contains(id int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ids[id]
	return ok
}
