package entity

// Conversation is the unique thread between one buyer and one seller
type Conversation struct {
	Id            int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	PairKey       string  `json:"-" gorm:"column:pair_key;size:96;uniqueIndex:uk_pair_key"`
	BuyerId       string  `json:"buyer_id" gorm:"column:buyer_id;size:64;index:idx_conv_buyer"`
	SellerId      string  `json:"seller_id" gorm:"column:seller_id;size:64;index:idx_conv_seller"`
	OrderRef      *string `json:"order_ref" gorm:"column:order_ref;size:64"`
	Status        string  `json:"status" gorm:"column:status;size:16"`
	LastMessageAt int64   `json:"last_message_at" gorm:"column:last_message_at"`
	CreatedAt     int64   `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     int64   `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// HasParty reports whether partyId is the buyer or the seller of the conversation
func (c *Conversation) HasParty(partyId string) bool {
	return partyId != "" && (c.BuyerId == partyId || c.SellerId == partyId)
}

// Counterparty returns the other party, or "" when partyId is not a party
func (c *Conversation) Counterparty(partyId string) string {
	switch partyId {
	case c.BuyerId:
		return c.SellerId
	case c.SellerId:
		return c.BuyerId
	}
	return ""
}

// ConversationInfo represents a conversation in the caller's inbox
type ConversationInfo struct {
	Id            int64        `json:"id"`
	Counterparty  *PartyInfo   `json:"counterparty"`
	OrderRef      *string      `json:"order_ref,omitempty"`
	Status        string       `json:"status"`
	LastMessageAt int64        `json:"last_message_at"`
	UnreadCount   int64        `json:"unread_count"`
	LastMessage   *MessageInfo `json:"last_message,omitempty"`
	CreatedAt     int64        `json:"created_at"`
}

// ToConversationInfo converts Conversation to ConversationInfo; counterparty,
// unread count and preview are filled by the caller
func (c *Conversation) ToConversationInfo() *ConversationInfo {
	return &ConversationInfo{
		Id:            c.Id,
		OrderRef:      c.OrderRef,
		Status:        c.Status,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}
