package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wagiedev/agentrpc-go/internal/config"
	"github.com/wagiedev/agentrpc-go/internal/protocol"
)

// CapabilitySync is the client capability that enables document tracking.
const CapabilitySync = "textDocument.sync"

// showMessageTimeout bounds a window/showMessage request.
const showMessageTimeout = 30 * time.Second

// Position is a zero-based line and character offset.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a selection between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Document is the params object of the textDocument notifications.
// Content and Selection are optional on didChange, didFocus and didClose.
type Document struct {
	URI       string  `json:"uri"`
	Content   *string `json:"content,omitempty"`
	Selection *Range  `json:"selection,omitempty"`
}

// Text returns the document content, or "" when none was sent.
func (d Document) Text() string {
	if d.Content == nil {
		return ""
	}

	return *d.Content
}

// MessageType is the severity of a window/showMessage request.
type MessageType string

const (
	MessageError   MessageType = "error"
	MessageWarning MessageType = "warning"
	MessageInfo    MessageType = "info"
)

// ShowMessageParams is the params object of window/showMessage.
type ShowMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
	Items   []string    `json:"items,omitempty"`
}

// Editor is the agent's view of the client's editor.
type Editor interface {
	// Open starts tracking a document.
	Open(ctx context.Context, doc Document) error
	// Change replaces the content or selection of a tracked document.
	Change(ctx context.Context, doc Document) error
	// Focus makes a tracked document the active one.
	Focus(ctx context.Context, uri string) error
	// Close stops tracking a document.
	Close(ctx context.Context, uri string) error
	// Document returns a tracked document.
	Document(uri string) (Document, bool)
	// Active returns the most recently opened or focused document.
	Active() (Document, bool)
}

// New selects the editor implementation for a client: Workspace when the
// client advertised CapabilitySync, Nop otherwise.
func New(log *slog.Logger, caller protocol.Caller, client config.ClientInfo) Editor {
	if client.HasCapability(CapabilitySync) {
		return NewWorkspace(log, caller)
	}

	return Nop{}
}

// Nop is an Editor that tracks nothing.
type Nop struct{}

// Compile-time verification that Nop implements Editor.
var _ Editor = Nop{}

func (Nop) Open(context.Context, Document) error  { return nil }
func (Nop) Change(context.Context, Document) error { return nil }
func (Nop) Focus(context.Context, string) error    { return nil }
func (Nop) Close(context.Context, string) error    { return nil }
func (Nop) Document(string) (Document, bool)       { return Document{}, false }
func (Nop) Active() (Document, bool)               { return Document{}, false }

// Workspace tracks open documents in memory. References to documents that
// were never opened are reported to the user with window/showMessage.
type Workspace struct {
	log    *slog.Logger
	caller protocol.Caller

	mu        sync.RWMutex
	documents map[string]Document
	active    string

	wg sync.WaitGroup
}

// Compile-time verification that Workspace implements Editor.
var _ Editor = (*Workspace)(nil)

// NewWorkspace creates a Workspace that reports problems through caller.
func NewWorkspace(log *slog.Logger, caller protocol.Caller) *Workspace {
	if log == nil {
		log = config.NopLogger()
	}

	return &Workspace{
		log:       log.With("component", "editor"),
		caller:    caller,
		documents: make(map[string]Document),
	}
}

// Open implements Editor.
func (w *Workspace) Open(_ context.Context, doc Document) error {
	if doc.URI == "" {
		return fmt.Errorf("open document: empty uri")
	}

	if doc.Content == nil {
		empty := ""
		doc.Content = &empty
	}

	w.mu.Lock()
	w.documents[doc.URI] = doc
	w.active = doc.URI
	w.mu.Unlock()

	w.log.Debug("Document opened", "uri", doc.URI, "size", len(*doc.Content))

	return nil
}

// Change implements Editor. Fields absent from doc keep their current value.
func (w *Workspace) Change(ctx context.Context, doc Document) error {
	w.mu.Lock()

	current, ok := w.documents[doc.URI]
	if ok {
		if doc.Content != nil {
			current.Content = doc.Content
		}

		if doc.Selection != nil {
			current.Selection = doc.Selection
		}

		w.documents[doc.URI] = current
	}

	w.mu.Unlock()

	if !ok {
		w.unknownDocument(ctx, "change", doc.URI)

		return nil
	}

	w.log.Debug("Document changed", "uri", doc.URI)

	return nil
}

// Focus implements Editor.
func (w *Workspace) Focus(ctx context.Context, uri string) error {
	w.mu.Lock()

	_, ok := w.documents[uri]
	if ok {
		w.active = uri
	}

	w.mu.Unlock()

	if !ok {
		w.unknownDocument(ctx, "focus", uri)
	}

	return nil
}

// Close implements Editor.
func (w *Workspace) Close(_ context.Context, uri string) error {
	w.mu.Lock()
	delete(w.documents, uri)

	if w.active == uri {
		w.active = ""
	}

	w.mu.Unlock()

	w.log.Debug("Document closed", "uri", uri)

	return nil
}

// Document implements Editor.
func (w *Workspace) Document(uri string) (Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	doc, ok := w.documents[uri]

	return doc, ok
}

// Active implements Editor.
func (w *Workspace) Active() (Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.active == "" {
		return Document{}, false
	}

	doc, ok := w.documents[w.active]

	return doc, ok
}

// Wait blocks until every window/showMessage request has been answered.
func (w *Workspace) Wait() {
	w.wg.Wait()
}

// unknownDocument warns the user about a document the client never opened.
// The request runs on its own goroutine so the notification sequence keeps
// moving while the user reads the message.
func (w *Workspace) unknownDocument(ctx context.Context, op, uri string) {
	w.log.Warn("Reference to unknown document", "op", op, "uri", uri)

	if w.caller == nil {
		return
	}

	params := ShowMessageParams{
		Type:    MessageWarning,
		Message: fmt.Sprintf("cannot %s %s: document is not open", op, uri),
	}

	w.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), showMessageTimeout)
		defer cancel()

		if _, err := w.caller.Request(ctx, protocol.MethodShowMessage, params); err != nil {
			w.log.Debug("window/showMessage failed", "uri", uri, "error", err)
		}
	})
}
