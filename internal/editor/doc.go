// Package editor tracks the documents a client has open.
//
// The agent consults an Editor when a handler needs the text of the active
// document. Clients that do not advertise the textDocument.sync capability
// get Nop, which tracks nothing.
package editor
