package tcpserver

// Session is implemented by each connection handler. The server creates one
// per accepted connection, runs Handle in its own goroutine and forgets the
// session when Handle returns.
type Session interface {
	// ID returns the session's identifier assigned by the server.
	ID() uint32

	// Handle runs the session until the connection ends. It must release the
	// connection before returning.
	Handle()

	// Close closes the underlying connection, which makes Handle return. It
	// must be safe to call more than once and concurrently with Handle.
	//
	// Returns:
	//   - An error if closing failed
	Close() error
}
