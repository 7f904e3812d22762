// Package jsonrpc implements the wire codec for the agent protocol.
//
// A frame carries exactly one Message: a Request (id + method), a
// Notification (method, no id) or a Response (id + exactly one of result or
// error). The three shapes form a closed set; callers switch on the concrete
// type or on Kind().
//
// Decode never panics on peer input. A frame that does not describe one of
// the three shapes yields an *errors.ProtocolError so the caller can drop the
// frame and keep the connection.
package jsonrpc
