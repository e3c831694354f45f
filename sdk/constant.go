package sdk

// Party roles
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// Message kinds
const (
	KindText  = "text"
	KindImage = "image"
	KindFile  = "file"
)

// Conversation status
const (
	ConvStatusOpen   = "open"
	ConvStatusClosed = "closed"
)

// WebSocket request identifiers
const (
	WSSubscribe     = 1001
	WSUnsubscribe   = 1002
	WSSendMsg       = 1003
	WSMessagesSince = 1005
	WSMarkRead      = 1006
)

// WebSocket push identifiers
const (
	WSPushMsg             = 2001
	WSPushRead            = 2003
	WSSubscriptionRevoked = 2004
)

// Stream event kinds
const (
	EventMessage = "message"
	EventRead    = "read"
)
