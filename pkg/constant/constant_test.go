package constant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicRoundTrip(t *testing.T) {
	assert.Equal(t, "conv:15", Topic(15))

	id, ok := ParseTopic(Topic(15))
	assert.True(t, ok)
	assert.Equal(t, int64(15), id)

	id, ok = ParseTopic(RedisChannelTopic(Topic(99)))
	assert.True(t, ok)
	assert.Equal(t, int64(99), id)

	_, ok = ParseTopic("conv:abc")
	assert.False(t, ok)
	_, ok = ParseTopic("group:1")
	assert.False(t, ok)
}

func TestValidKind(t *testing.T) {
	for _, k := range []string{KindText, KindInquiry, KindImage, KindFile} {
		assert.True(t, ValidKind(k))
	}
	assert.False(t, ValidKind("video"))
	assert.False(t, ValidKind(""))
}
