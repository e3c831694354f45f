package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id, createdAt int64) *Message {
	return &Message{Id: id, ConversationId: 1, SenderId: "b___1", ReceiverId: "s___1", CreatedAt: createdAt}
}

func ids(msgs []*Message) []int64 {
	out := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Id)
	}
	return out
}

func TestTimelineMergeIsIdempotent(t *testing.T) {
	tl := NewTimeline()

	added := tl.MergePolled([]*Message{msg(1, 10), msg(2, 12)})
	assert.Len(t, added, 2)

	added = tl.MergePolled([]*Message{msg(1, 10), msg(2, 12)})
	assert.Empty(t, added)
	assert.Empty(t, tl.Merge(msg(2, 12)))
	assert.Equal(t, 2, tl.Len())
}

func TestTimelineOrdersByTimestampThenId(t *testing.T) {
	tl := NewTimeline()
	tl.Merge(msg(5, 20), msg(3, 10), nil)
	tl.Merge(msg(4, 10), msg(1, 30))

	assert.Equal(t, []int64{3, 4, 5, 1}, ids(tl.Messages()))
}

func TestTimelineWatermark(t *testing.T) {
	tl := NewTimeline()
	assert.Zero(t, tl.Watermark())

	tl.MergePolled([]*Message{msg(1, 10), msg(2, 15)})
	assert.Equal(t, int64(15), tl.Watermark())

	// an older page never moves it back
	tl.MergePolled([]*Message{msg(0, 5)})
	assert.Equal(t, int64(15), tl.Watermark())

	// pushes merge but leave the watermark alone
	tl.Merge(msg(3, 40))
	assert.Equal(t, int64(15), tl.Watermark())
	assert.True(t, tl.Contains(3))
}

// Push and a stale poll deliver the same message; exactly one copy remains.
func TestTimelinePushThenStalePoll(t *testing.T) {
	tl := NewTimeline()

	tl.MergePolled([]*Message{msg(1, 10)})
	require.Equal(t, int64(10), tl.Watermark())

	assert.Len(t, tl.Merge(msg(2, 12)), 1)
	assert.Empty(t, tl.MergePolled([]*Message{msg(2, 12)}))

	assert.Equal(t, []int64{1, 2}, ids(tl.Messages()))
	assert.Equal(t, int64(12), tl.Watermark())
}

func TestTimelineApplyRead(t *testing.T) {
	tl := NewTimeline()
	reply := &Message{Id: 3, SenderId: "s___1", ReceiverId: "b___1", CreatedAt: 30}
	tl.Merge(msg(1, 10), msg(2, 20), reply)
	before := tl.Messages()

	assert.Equal(t, 1, tl.ApplyRead(&ReadReceipt{ReaderId: "s___1", MessageIds: []int64{2}}))
	assert.Equal(t, 1, tl.ApplyRead(&ReadReceipt{ReaderId: "s___1", MessageIds: []int64{1, 2, 3}}))
	assert.Zero(t, tl.ApplyRead(&ReadReceipt{ReaderId: "s___1", MessageIds: []int64{1, 2}}))
	assert.Zero(t, tl.ApplyRead(&ReadReceipt{ReaderId: "s___1", Count: 2}))
	assert.Zero(t, tl.ApplyRead(nil))

	for _, m := range tl.Messages() {
		assert.Equal(t, m.ReceiverId == "s___1", m.IsRead, "message %d", m.Id)
	}
	// earlier snapshots are not mutated
	for _, m := range before {
		assert.False(t, m.IsRead)
	}
}

func TestTimelineReadReceiptAfterLaterMessage(t *testing.T) {
	tl := NewTimeline()
	tl.MergePolled([]*Message{msg(1, 10), msg(2, 20), msg(3, 30)})

	// the fourth message is pushed before the receipt for the first three
	tl.Merge(msg(4, 40))
	assert.Equal(t, 3, tl.ApplyRead(&ReadReceipt{ReaderId: "s___1", MessageIds: []int64{1, 2, 3}, Count: 3}))

	// a later poll returning the server's copy does not change the outcome
	tl.MergePolled([]*Message{msg(4, 40)})

	for _, m := range tl.Messages() {
		assert.Equal(t, m.Id != 4, m.IsRead, "message %d", m.Id)
	}
}
