// Package transport provides frame transports for the agent protocol.
//
// A transport moves opaque frame bodies between two peers and knows nothing
// about the messages inside them. The implementations here are:
//   - Stream: any io.Reader/io.WriteCloser pair with line or Content-Length
//     framing (stdio, pipes, sockets)
//   - WebSocket: one text message per frame
//   - MCPBridge: any MCP SDK connection, including the in-memory pair used by
//     tests and embedded agents
//
// Process-backed transports live in the subprocess package.
package transport
