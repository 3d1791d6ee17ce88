package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Payload type names carried in the JSON document's "type" field.
const (
	NameChatMessage   = "ChatMessage"
	NameSystemMessage = "SystemMessage"
	NameJoinRequest   = "JoinRequest"
	NameServerInfo    = "ServerInfo"
)

var (
	// ErrUnknownTag reports an envelope whose type tag has no decoder.
	ErrUnknownTag = errors.New("wire: unknown envelope tag")

	// ErrUnknownPayload reports a JSON document naming a payload type
	// this codec does not know.
	ErrUnknownPayload = errors.New("wire: unknown payload type")
)

// Payload is implemented by every application payload type.
type Payload interface {
	payloadName() string
}

// User is one participant in the chat as it appears in roster snapshots.
type User struct {
	// UID is the user's identity: the server-side id of their connection.
	UID uuid.UUID `json:"uid"`

	// Username is the self-reported display name.
	Username string `json:"username"`

	// Color is the normalized 6-hex-digit RGB display color.
	Color string `json:"color"`
}

// ChatMessage is one line of chat attributed to a sender. The server
// rewrites UID with the originating connection's id before fanning out, so
// a client-declared value is never trusted.
type ChatMessage struct {
	UID  uuid.UUID `json:"uid"`
	Text string    `json:"text"`
}

func (ChatMessage) payloadName() string { return NameChatMessage }

// SystemMessage is informational text with no sender identity.
type SystemMessage struct {
	Text string `json:"text"`
}

func (SystemMessage) payloadName() string { return NameSystemMessage }

// JoinRequest is sent once by a client immediately after its transport
// connects. The server assigns the connection's id as the new user's id.
type JoinRequest struct {
	Username string `json:"username"`
	Color    string `json:"color"`
}

func (JoinRequest) payloadName() string { return NameJoinRequest }

// ServerInfo is a full roster snapshot. UID tags which entry is the
// recipient itself; every recipient gets its own personalized copy.
type ServerInfo struct {
	Users map[uuid.UUID]User `json:"users"`
	UID   uuid.UUID          `json:"uid"`
}

func (ServerInfo) payloadName() string { return NameServerInfo }

// document is the JSON shape carried inside a TagJSON envelope.
type document struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal encodes p into frame payload bytes: the JSON tag byte followed
// by {"type": ..., "payload": {...}}.
func Marshal(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.payloadName(), err)
	}

	doc, err := json.Marshal(document{Type: p.payloadName(), Payload: body})
	if err != nil {
		return nil, fmt.Errorf("marshal %s document: %w", p.payloadName(), err)
	}

	return Envelope{Tag: TagJSON, Body: doc}.Encode(), nil
}

// Unmarshal decodes frame payload bytes back into the typed payload.
// Decoding is type-directed: the "type" field selects the decoder and
// identifier fields are declared uuid.UUID, so an identifier-shaped chat
// string is never mistaken for an id.
func Unmarshal(payload []byte) (Payload, error) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		return nil, err
	}
	if env.Tag != TagJSON {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownTag, env.Tag)
	}

	var doc document
	if err := json.Unmarshal(env.Body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal envelope document: %w", err)
	}

	switch doc.Type {
	case NameChatMessage:
		var m ChatMessage
		if err := json.Unmarshal(doc.Payload, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", doc.Type, err)
		}
		return m, nil

	case NameSystemMessage:
		var m SystemMessage
		if err := json.Unmarshal(doc.Payload, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", doc.Type, err)
		}
		return m, nil

	case NameJoinRequest:
		var m JoinRequest
		if err := json.Unmarshal(doc.Payload, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", doc.Type, err)
		}
		return m, nil

	case NameServerInfo:
		var m ServerInfo
		if err := json.Unmarshal(doc.Payload, &m); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", doc.Type, err)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPayload, doc.Type)
	}
}
