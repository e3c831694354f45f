package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Party represents a buyer or seller summary
type Party struct {
	Id          string `json:"id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	CompanyName string `json:"company_name"`
	Avatar      string `json:"avatar"`
	Online      bool   `json:"online"`
}

// Attachment represents a stored file attached to a message
type Attachment struct {
	Id          int64  `json:"id"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Position    int    `json:"position"`
}

// Message represents a hydrated message
type Message struct {
	Id               int64         `json:"id"`
	ConversationId   int64         `json:"conversation_id"`
	SenderId         string        `json:"sender_id"`
	ReceiverId       string        `json:"receiver_id"`
	Sender           *Party        `json:"sender,omitempty"`
	Body             string        `json:"body"`
	Kind             string        `json:"kind"`
	Attachments      []*Attachment `json:"attachments"`
	RelatedProductId *string       `json:"related_product_id,omitempty"`
	IsRead           bool          `json:"is_read"`
	CreatedAt        int64         `json:"created_at"`
}

// Before reports whether m sorts before other in (created_at, id) order
func (m *Message) Before(other *Message) bool {
	if m.CreatedAt != other.CreatedAt {
		return m.CreatedAt < other.CreatedAt
	}
	return m.Id < other.Id
}

// Conversation represents an inbox entry
type Conversation struct {
	Id            int64    `json:"id"`
	Counterparty  *Party   `json:"counterparty"`
	OrderRef      *string  `json:"order_ref,omitempty"`
	Status        string   `json:"status"`
	LastMessageAt int64    `json:"last_message_at"`
	UnreadCount   int64    `json:"unread_count"`
	LastMessage   *Message `json:"last_message,omitempty"`
	CreatedAt     int64    `json:"created_at"`
}

// MessagePage is one page of a reconciliation poll
type MessagePage struct {
	Messages  []*Message `json:"messages"`
	HasMore   bool       `json:"has_more"`
	Watermark int64      `json:"watermark"`
}

// ReadReceipt tells the sender that messages were read
type ReadReceipt struct {
	ConversationId int64   `json:"conversation_id"`
	ReaderId       string  `json:"reader_id"`
	MessageIds     []int64 `json:"message_ids,omitempty"`
	Count          int64   `json:"count"`
	ReadAt         int64   `json:"read_at"`
}

// SendMessageRequest represents send message request. Set ConversationId, or
// RecipientId (and optionally RecipientType) for a first contact.
type SendMessageRequest struct {
	ConversationId   int64   `json:"conversation_id,omitempty"`
	RecipientId      string  `json:"recipient_id,omitempty"`
	RecipientType    string  `json:"recipient_type,omitempty"`
	OrderRef         *string `json:"order_ref,omitempty"`
	Body             string  `json:"body"`
	Kind             string  `json:"kind,omitempty"`
	AttachmentIds    []int64 `json:"attachment_ids,omitempty"`
	RelatedProductId *string `json:"related_product_id,omitempty"`
}

// MarkReadRequest represents mark read request; nil MessageIds marks everything
type MarkReadRequest struct {
	MessageIds []int64 `json:"message_ids,omitempty"`
}

// MarkReadResponse represents mark read response
type MarkReadResponse struct {
	Count int64 `json:"count"`
}

// UnreadCountResponse represents unread count response
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

// Event is a push received on a stream subscription
type Event struct {
	Kind           string       `json:"kind"`
	ConversationId int64        `json:"conversation_id"`
	Message        *Message     `json:"message,omitempty"`
	Read           *ReadReceipt `json:"read,omitempty"`
}

// wsRequest is a request frame
type wsRequest struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"`
	OperationId   string          `json:"operation_id,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// wsResponse is a reply or push frame
type wsResponse struct {
	ReqIdentifier int32           `json:"req_identifier"`
	MsgIncr       string          `json:"msg_incr"`
	OperationId   string          `json:"operation_id"`
	ErrCode       int             `json:"err_code"`
	ErrMsg        string          `json:"err_msg"`
	Data          json.RawMessage `json:"data,omitempty"`
}

type subscribeReq struct {
	ConversationId int64 `json:"conversation_id"`
}
