/*
Package events provides the typed publish/subscribe bus that decouples the
network layer from the chat application logic.

The event taxonomy is a closed set of variants, each with a fixed Kind.
Handlers register per kind and come in two flavors: synchronous handlers
run inline, in registration order, before Publish returns; asynchronous
handlers are dispatched through a single worker goroutine fed by an
unbounded FIFO, so Publish never blocks and state touched only by
asynchronous handlers is never accessed from two goroutines at once.
*/
package events

import (
	"github.com/google/uuid"

	"peerchat/internal/wire"
)

// Kind discriminates the closed set of event variants.
type Kind int

const (
	// KindServerStarted fires once the server socket is listening.
	KindServerStarted Kind = iota + 1

	// KindConnectedToHost fires once a client's outbound dial succeeds.
	KindConnectedToHost

	// KindConnectionEstablished fires when a connection enters the
	// registry, inside the registry's critical section.
	KindConnectionEstablished

	// KindConnectionLost fires when a connection leaves the registry,
	// inside the registry's critical section.
	KindConnectionLost

	// KindFrameReceived fires for every frame decoded off a connection.
	KindFrameReceived

	// KindInputSubmitted fires when the user submits text in the UI.
	KindInputSubmitted

	// KindChatReceived fires for a chat message ready for local policy:
	// rendering plus, depending on role, fan-out.
	KindChatReceived

	// KindSystemNotice fires for informational text to render locally.
	KindSystemNotice

	// KindJoinRequested fires on the server when a connection asks to
	// join the roster.
	KindJoinRequested
)

// Event is implemented by every variant in the taxonomy.
type Event interface {
	EventKind() Kind
}

// ServerStarted reports the listening address.
type ServerStarted struct {
	Addr string
}

func (ServerStarted) EventKind() Kind { return KindServerStarted }

// ConnectedToHost reports the address a client connected to.
type ConnectedToHost struct {
	Addr string
}

func (ConnectedToHost) EventKind() Kind { return KindConnectedToHost }

// ConnectionEstablished reports a connection added to the registry.
type ConnectionEstablished struct {
	CID        uuid.UUID
	RemoteAddr string
}

func (ConnectionEstablished) EventKind() Kind { return KindConnectionEstablished }

// ConnectionLost reports a connection removed from the registry.
type ConnectionLost struct {
	CID        uuid.UUID
	RemoteAddr string
}

func (ConnectionLost) EventKind() Kind { return KindConnectionLost }

// FrameReceived carries one raw frame payload read off a connection.
type FrameReceived struct {
	CID  uuid.UUID
	Data []byte
}

func (FrameReceived) EventKind() Kind { return KindFrameReceived }

// InputSubmitted carries text the local user submitted.
type InputSubmitted struct {
	Text string
}

func (InputSubmitted) EventKind() Kind { return KindInputSubmitted }

// ChatReceived carries a chat message whose sender id has already been
// settled by whoever published it.
type ChatReceived struct {
	Message wire.ChatMessage
}

func (ChatReceived) EventKind() Kind { return KindChatReceived }

// SystemNotice carries informational text for the local transcript.
type SystemNotice struct {
	Text string
}

func (SystemNotice) EventKind() Kind { return KindSystemNotice }

// JoinRequested carries a join request together with the id of the
// connection it arrived on.
type JoinRequested struct {
	Request wire.JoinRequest
	CID     uuid.UUID
}

func (JoinRequested) EventKind() Kind { return KindJoinRequested }

// Handler consumes one event.
type Handler func(Event)
