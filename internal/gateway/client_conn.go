package gateway

// ClientConn is the transport under a Client. WriteMessage never blocks: a
// frame is either queued for the connection's writer or rejected.
type ClientConn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}
