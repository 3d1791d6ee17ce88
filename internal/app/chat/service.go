/*
Package chat contains the application logic: the server-authoritative user
roster, the message routing policy, and the roster synchronization
protocol.

This file defines the Service struct, which subscribes to bus events and
applies role policy. Every handler it registers is asynchronous, so all of
them run on the bus's single dispatch worker: roster state is only ever
touched from one goroutine, and none of them runs inside the registry's
critical section.
*/
package chat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"peerchat/internal/configs"
	"peerchat/internal/netx"
	"peerchat/internal/pkg/events"
	"peerchat/internal/pkg/logx"
	"peerchat/internal/wire"
)

// fallbackColor is used when a peer reports a color that fails validation.
const fallbackColor = "000000"

// Presenter renders transcript lines. The terminal UI implements it; tests
// substitute a recording fake.
type Presenter interface {
	// AppendUserMessage renders one chat line attributed to a user.
	AppendUserMessage(user wire.User, text string)

	// AppendSystemMessage renders informational text with no sender.
	AppendSystemMessage(text string)
}

// Broadcaster is the slice of the connection registry the service needs:
// targeted fan-out and the ability to drop a misbehaving connection.
type Broadcaster interface {
	Broadcast(payload []byte, include, exclude netx.IDSet)
	Drop(id uuid.UUID)
}

// Service owns the roster and applies the chat routing policy for the
// process's role.
type Service struct {
	cfg       *configs.RunConfig
	bus       *events.Bus
	network   Broadcaster
	presenter Presenter

	// info is the roster plus the local user's id. On the server it is
	// seeded with the operator's own user and mutated on join/leave; on
	// a client it is nil until the first snapshot arrives and is then
	// replaced wholesale by each one. Only the dispatch worker mutates
	// it; mu lets Users and SelfID read it from other goroutines.
	mu   sync.RWMutex
	info *wire.ServerInfo

	logger zerolog.Logger
}

// NewService constructs the Service and registers its handlers on the bus.
// Shared handlers apply to both roles; role handlers are registered in
// addition, never instead.
func NewService(cfg *configs.RunConfig, bus *events.Bus, network Broadcaster, presenter Presenter) *Service {
	s := &Service{
		cfg:       cfg,
		bus:       bus,
		network:   network,
		presenter: presenter,
		logger:    logx.Logger().With().Str("component", "chat").Logger(),
	}

	if cfg.Serve {
		self := uuid.New()
		s.info = &wire.ServerInfo{
			Users: map[uuid.UUID]wire.User{
				self: {UID: self, Username: cfg.Username, Color: cfg.Color},
			},
			UID: self,
		}
	}

	bus.SubscribeAsync(events.KindFrameReceived, s.onFrameReceived)
	bus.SubscribeAsync(events.KindInputSubmitted, s.onInputSubmitted)
	bus.SubscribeAsync(events.KindChatReceived, s.onChatReceived)
	bus.SubscribeAsync(events.KindSystemNotice, s.onSystemNotice)
	bus.SubscribeAsync(events.KindConnectionEstablished, s.onConnectionEstablished)
	bus.SubscribeAsync(events.KindConnectionLost, s.onConnectionLost)

	if cfg.Serve {
		bus.SubscribeAsync(events.KindServerStarted, s.onServerStarted)
		bus.SubscribeAsync(events.KindJoinRequested, s.onJoinRequested)
		bus.SubscribeAsync(events.KindConnectionLost, s.onUserDeparted)
	} else {
		bus.SubscribeAsync(events.KindConnectedToHost, s.onConnectedToHost)
	}

	return s
}

// SelfID returns the local user's id, or uuid.Nil before a client has
// received its first roster snapshot.
func (s *Service) SelfID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.info == nil {
		return uuid.Nil
	}
	return s.info.UID
}

// Users returns a copy of the current roster.
func (s *Service) Users() []wire.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.info == nil {
		return nil
	}
	users := make([]wire.User, 0, len(s.info.Users))
	for _, u := range s.info.Users {
		users = append(users, u)
	}
	return users
}

// lookupUser resolves an id against the current roster.
func (s *Service) lookupUser(id uuid.UUID) (wire.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.info == nil {
		return wire.User{}, false
	}
	u, ok := s.info.Users[id]
	return u, ok
}

// send marshals p and fans it out through the registry with the given
// targeting. Marshal failures are logged and dropped; they indicate a
// local bug, not a peer fault.
func (s *Service) send(p wire.Payload, include, exclude netx.IDSet) {
	payload, err := wire.Marshal(p)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to marshal outbound payload.")
		return
	}
	s.network.Broadcast(payload, include, exclude)
}

// systemMessage shows text in the local transcript and, when toChannel is
// set, also broadcasts it to every connection.
func (s *Service) systemMessage(text string, toChannel bool) {
	s.bus.Publish(events.SystemNotice{Text: text})
	if toChannel {
		s.send(wire.SystemMessage{Text: text}, nil, nil)
	}
}

// syncRoster pushes a personalized full roster snapshot to every joined
// user: each recipient's copy carries that recipient's own id.
func (s *Service) syncRoster() {
	s.mu.RLock()
	uids := make([]uuid.UUID, 0, len(s.info.Users))
	for uid := range s.info.Users {
		uids = append(uids, uid)
	}
	users := s.info.Users
	s.mu.RUnlock()

	for _, uid := range uids {
		snapshot := wire.ServerInfo{Users: users, UID: uid}
		s.send(snapshot, netx.NewIDSet(uid), nil)
	}
}

// onFrameReceived decodes one inbound frame and routes the payload per
// role. A frame that fails to decode is a connection-fatal fault: a peer
// that framed one message wrong cannot be trusted to resynchronize, so its
// connection is dropped — and only its connection.
func (s *Service) onFrameReceived(e events.Event) {
	frame := e.(events.FrameReceived)

	payload, err := wire.Unmarshal(frame.Data)
	if err != nil {
		s.logger.Warn().
			Str("conn_id", frame.CID.String()).
			Err(err).
			Msg("Undecodable frame, dropping connection.")
		s.network.Drop(frame.CID)
		return
	}

	switch p := payload.(type) {
	case wire.ChatMessage:
		if s.cfg.Serve {
			// Sender authority: the connection the message arrived on is
			// the sender, whatever the payload claims.
			p.UID = frame.CID
		}
		s.bus.Publish(events.ChatReceived{Message: p})

	case wire.JoinRequest:
		if !s.cfg.Serve {
			s.logger.Warn().Str("conn_id", frame.CID.String()).Msg("Ignoring join request received as client.")
			return
		}
		s.bus.Publish(events.JoinRequested{Request: p, CID: frame.CID})

	case wire.ServerInfo:
		if s.cfg.Serve {
			s.logger.Warn().Str("conn_id", frame.CID.String()).Msg("Ignoring roster snapshot received as server.")
			return
		}
		s.mu.Lock()
		s.info = &p
		s.mu.Unlock()

	case wire.SystemMessage:
		if !s.cfg.Serve {
			s.systemMessage(p.Text, false)
		}
	}
}

// onInputSubmitted turns locally submitted text into a chat message from
// self.
func (s *Service) onInputSubmitted(e events.Event) {
	input := e.(events.InputSubmitted)

	self := s.SelfID()
	if self == uuid.Nil {
		s.systemMessage("Not connected yet, message not sent.", false)
		return
	}

	s.bus.Publish(events.ChatReceived{Message: wire.ChatMessage{UID: self, Text: input.Text}})
}

// onChatReceived renders a chat message and, per role, fans it out: the
// server forwards to everyone but the sender; a client forwards only its
// own messages (to its single server connection).
func (s *Service) onChatReceived(e events.Event) {
	msg := e.(events.ChatReceived).Message

	sender, ok := s.lookupUser(msg.UID)
	if !ok {
		s.logger.Warn().
			Str("sender_id", msg.UID.String()).
			Msg("Chat message from id not in roster, dropping.")
		return
	}

	s.presenter.AppendUserMessage(sender, msg.Text)

	if s.cfg.Serve || msg.UID == s.SelfID() {
		s.send(msg, nil, netx.NewIDSet(msg.UID))
	}
}

func (s *Service) onSystemNotice(e events.Event) {
	s.presenter.AppendSystemMessage(e.(events.SystemNotice).Text)
}

func (s *Service) onConnectionEstablished(e events.Event) {
	established := e.(events.ConnectionEstablished)
	s.systemMessage(fmt.Sprintf("New connection: remote_address %s", established.RemoteAddr), false)
}

func (s *Service) onConnectionLost(e events.Event) {
	lost := e.(events.ConnectionLost)
	s.systemMessage(fmt.Sprintf("Connection ended: remote_address %s", lost.RemoteAddr), false)
}

// onJoinRequested admits a new user: the joining connection's id becomes
// the user's id, every joined user gets a fresh personalized snapshot, and
// everyone hears about the arrival.
func (s *Service) onJoinRequested(e events.Event) {
	join := e.(events.JoinRequested)

	color, err := configs.NormalizeColor(join.Request.Color)
	if err != nil {
		s.logger.Warn().
			Str("conn_id", join.CID.String()).
			Str("color", join.Request.Color).
			Msg("Join request with invalid color, using fallback.")
		color = fallbackColor
	}

	u := wire.User{UID: join.CID, Username: join.Request.Username, Color: color}
	s.mu.Lock()
	s.info.Users[u.UID] = u
	s.mu.Unlock()

	s.syncRoster()
	s.systemMessage(fmt.Sprintf("%s joined the chat", u.Username), true)
}

// onUserDeparted is the server's additional ConnectionLost handler: if the
// connection had joined, its user leaves the roster and the remaining
// users are resynchronized. A connection that never joined is ignored.
func (s *Service) onUserDeparted(e events.Event) {
	lost := e.(events.ConnectionLost)

	u, ok := s.lookupUser(lost.CID)
	if !ok {
		return
	}

	s.mu.Lock()
	delete(s.info.Users, lost.CID)
	s.mu.Unlock()

	s.syncRoster()
	s.systemMessage(fmt.Sprintf("%s left the chat.", u.Username), true)
}

// onServerStarted and onConnectedToHost announce the transport milestones;
// the client additionally introduces itself with a join request.
func (s *Service) onServerStarted(e events.Event) {
	s.systemMessage(fmt.Sprintf("Server started on %s", e.(events.ServerStarted).Addr), false)
}

func (s *Service) onConnectedToHost(e events.Event) {
	s.systemMessage(fmt.Sprintf("Connected to server %s", e.(events.ConnectedToHost).Addr), false)
	s.send(wire.JoinRequest{Username: s.cfg.Username, Color: s.cfg.Color}, nil, nil)
}
