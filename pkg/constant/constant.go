package constant

import (
	"strconv"
	"strings"
)

// Message kinds
const (
	KindText    = "text"
	KindInquiry = "inquiry"
	KindImage   = "image"
	KindFile    = "file"
)

// ValidKind reports whether kind is one of the accepted message kinds
func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindInquiry, KindImage, KindFile:
		return true
	}
	return false
}

// Conversation status
const (
	ConvStatusOpen   = "open"
	ConvStatusClosed = "closed"
)

// Pair key and topic prefixes
const (
	PairKeyPrefix = "pr_"
	TopicPrefix   = "conv:"
)

// Topic returns the fan-out topic for a conversation
func Topic(conversationId int64) string {
	return TopicPrefix + strconv.FormatInt(conversationId, 10)
}

// ParseTopic extracts the conversation id from a topic name, ignoring any key prefix
func ParseTopic(topic string) (int64, bool) {
	idx := strings.LastIndex(topic, TopicPrefix)
	if idx < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(topic[idx+len(TopicPrefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Redis key patterns (without prefix, see the getters below)
const (
	redisKeyOnline = "online:%s" // online:{party_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "tradechat:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string { return redisKeyPrefix + redisKeyOnline }

// RedisChannelTopic returns the pub/sub channel that carries a topic across instances
func RedisChannelTopic(topic string) string { return redisKeyPrefix + topic }

// RedisChannelTopicPattern matches every conversation channel
func RedisChannelTopicPattern() string { return redisKeyPrefix + TopicPrefix + "*" }
