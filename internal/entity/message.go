package entity

// Message is one immutable entry of a conversation's log. Only the read
// flag changes after insert.
type Message struct {
	Id               int64         `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	ConversationId   int64         `json:"conversation_id" gorm:"column:conversation_id;not null;index:idx_msg_conv_time,priority:1"`
	SenderId         string        `json:"sender_id" gorm:"column:sender_id;size:64;not null"`
	ReceiverId       string        `json:"receiver_id" gorm:"column:receiver_id;size:64;not null;index:idx_msg_receiver_read,priority:1"`
	Body             string        `json:"body" gorm:"column:body;type:text"`
	Kind             string        `json:"kind" gorm:"column:kind;size:16"`
	RelatedProductId *string       `json:"related_product_id" gorm:"column:related_product_id;size:64"`
	IsRead           bool          `json:"is_read" gorm:"column:is_read;not null;default:false;index:idx_msg_receiver_read,priority:2"`
	ReadAt           int64         `json:"read_at" gorm:"column:read_at"`
	CreatedAt        int64         `json:"created_at" gorm:"column:created_at;not null;index:idx_msg_conv_time,priority:2"`
	Attachments      []*Attachment `json:"attachments,omitempty" gorm:"foreignKey:MessageId"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// Before reports whether m sorts before o in conversation order (created_at, id)
func (m *Message) Before(o *Message) bool {
	if m.CreatedAt != o.CreatedAt {
		return m.CreatedAt < o.CreatedAt
	}
	return m.Id < o.Id
}

// MessageInfo is the hydrated message shape shared by REST responses and pushes
type MessageInfo struct {
	Id               int64             `json:"id"`
	ConversationId   int64             `json:"conversation_id"`
	SenderId         string            `json:"sender_id"`
	ReceiverId       string            `json:"receiver_id"`
	Sender           *PartyInfo        `json:"sender,omitempty"`
	Body             string            `json:"body"`
	Kind             string            `json:"kind"`
	Attachments      []*AttachmentInfo `json:"attachments"`
	RelatedProductId *string           `json:"related_product_id,omitempty"`
	IsRead           bool              `json:"is_read"`
	CreatedAt        int64             `json:"created_at"`
}

// ToMessageInfo converts Message to MessageInfo; the sender and attachment
// URLs are filled by the caller
func (m *Message) ToMessageInfo() *MessageInfo {
	info := &MessageInfo{
		Id:               m.Id,
		ConversationId:   m.ConversationId,
		SenderId:         m.SenderId,
		ReceiverId:       m.ReceiverId,
		Body:             m.Body,
		Kind:             m.Kind,
		Attachments:      make([]*AttachmentInfo, 0, len(m.Attachments)),
		RelatedProductId: m.RelatedProductId,
		IsRead:           m.IsRead,
		CreatedAt:        m.CreatedAt,
	}
	for _, a := range m.Attachments {
		info.Attachments = append(info.Attachments, a.ToAttachmentInfo())
	}
	return info
}

// MessagePage is one page of a conversation's history in ascending order
type MessagePage struct {
	Messages  []*MessageInfo `json:"messages"`
	HasMore   bool           `json:"has_more"`
	Watermark int64          `json:"watermark"`
}

// ReadReceipt announces that a receiver marked messages of a conversation read
type ReadReceipt struct {
	ConversationId int64   `json:"conversation_id"`
	ReaderId       string  `json:"reader_id"`
	MessageIds     []int64 `json:"message_ids,omitempty"`
	Count          int64   `json:"count"`
	ReadAt         int64   `json:"read_at"`
}
