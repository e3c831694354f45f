package gateway

// WebSocket protocol constants
const (
	// Request identifiers
	WSSubscribe     = 1001 // Subscribe to one conversation
	WSUnsubscribe   = 1002 // Drop the current subscription
	WSSendMsg       = 1003 // Send message
	WSMessagesSince = 1005 // Reconciliation poll
	WSMarkRead      = 1006 // Mark messages read

	// Push identifiers
	WSPushMsg             = 2001 // Server push message
	WSPushRead            = 2003 // Read receipt
	WSSubscriptionRevoked = 2004 // Server dropped the subscription, poll to catch up
)

// Query parameter keys
const (
	QueryToken = "token"
)
