package gateway

import (
	"encoding/json"

	"github.com/mbeoliero/tradechat/internal/entity"
)

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type
	MsgIncr       string          `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string          `json:"operation_id"`   // Operation Id
	Data          json.RawMessage `json:"data"`           // Business data
}

// WSResponse represents a WebSocket response or push message
type WSResponse struct {
	ReqIdentifier int32           `json:"req_identifier"` // Request type (echo back) or push type
	MsgIncr       string          `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string          `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int             `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string          `json:"err_msg"`        // Error message
	Data          json.RawMessage `json:"data,omitempty"` // Response data
}

// SubscribeReq represents subscribe request data
type SubscribeReq struct {
	ConversationId int64 `json:"conversation_id"`
}

// SubscribeResp represents subscribe response data
type SubscribeResp struct {
	ConversationId int64  `json:"conversation_id"`
	Topic          string `json:"topic"`
}

// MessagesSinceReq represents reconciliation poll request data
type MessagesSinceReq struct {
	ConversationId int64 `json:"conversation_id"`
	Since          int64 `json:"since"`
	Limit          int   `json:"limit"`
}

// MarkReadReq represents mark read request data
type MarkReadReq struct {
	ConversationId int64   `json:"conversation_id"`
	MessageIds     []int64 `json:"message_ids,omitempty"`
}

// MarkReadResp represents mark read response data
type MarkReadResp struct {
	Count int64 `json:"count"`
}

// RevokedData tells a session which subscription was dropped
type RevokedData struct {
	ConversationId int64 `json:"conversation_id"`
}

// Event kinds carried through the fan-out path
const (
	EventMessage = "message"
	EventRead    = "read"
)

// Event is one fan-out publication. It is also the payload relayed between
// instances over Redis.
type Event struct {
	Kind           string              `json:"kind"`
	ConversationId int64               `json:"conversation_id"`
	Message        *entity.MessageInfo `json:"message,omitempty"`
	Read           *entity.ReadReceipt `json:"read,omitempty"`
}

// push converts the event into the frame sent to subscribers
func (e *Event) push() (*WSResponse, error) {
	var (
		data []byte
		err  error
		id   int32
	)
	switch e.Kind {
	case EventMessage:
		id = WSPushMsg
		data, err = json.Marshal(e.Message)
	case EventRead:
		id = WSPushRead
		data, err = json.Marshal(e.Read)
	default:
		return nil, ErrInvalidProtocol
	}
	if err != nil {
		return nil, err
	}
	return &WSResponse{ReqIdentifier: id, Data: data}, nil
}

// Encode encodes data to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
