// Package protocol implements the bidirectional request/notification engine.
//
// The protocol package provides a Controller that correlates responses with
// the requests that caused them and a Session that layers the lifecycle
// state machine on top of it. Both peers can send requests and
// notifications at any time once the handshake finished.
//
// The Session handles:
//   - The initialize / initialized handshake and its timeout
//   - Rejecting requests that arrive before the handshake with NotInitialized
//   - Draining in-flight handlers on shutdown and closing on exit
//   - Failing every pending request with ConnectionClosed when the session ends
//
// Example usage:
//
//	session := protocol.NewClientSession(transport, opts)
//	if err := session.Start(ctx); err != nil {
//		return err
//	}
//
//	info, err := session.Initialize(ctx, config.ClientInfo{Name: "editor"})
//
//	// Send a request; cancelling ctx sends $/cancelRequest to the peer
//	result, err := session.Request(ctx, "chat/new", params)
package protocol
