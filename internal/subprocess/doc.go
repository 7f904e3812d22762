// Package subprocess provides a transport that runs the agent as a child
// process and exchanges frames over its stdin and stdout.
//
// The child's stderr is forwarded line by line to an optional callback and
// buffered so that an abnormal exit can be reported with its output.
package subprocess
