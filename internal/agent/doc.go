// Package agent installs the built-in handlers of the agent process on a
// server session: extension configuration tracking and the editor
// capability. Business handlers are registered by callers on the same
// session.
package agent
