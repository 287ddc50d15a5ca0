// EarthForUs - Volunteer Event Coordination
// Copyright 2026 EarthForUs Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/earthforus/earthforus

// Package websocket implements the chat connection registry and room
// broadcaster.
//
// A Registry owns every live connection and the rooms (event ids) each one has
// joined. All mutations run on a single goroutine started with RunWithContext;
// transport pumps and HTTP handlers talk to it through channels. Delivery is
// best-effort: a recipient whose outbound queue is full is skipped, never
// retried and never disconnected.
package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/earthforus/earthforus/internal/logging"
	"github.com/earthforus/earthforus/internal/wire"
)

// ShutdownReason identifies why the registry loop stopped.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline means the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// DefaultWelcomeMessage is sent to every client right after it connects.
const DefaultWelcomeMessage = "Connected to chat server"

// ErrRegistryStopped is returned when the registry loop has shut down.
var ErrRegistryStopped = errors.New("websocket registry stopped")

type eventKind uint8

const (
	eventConnect eventKind = iota
	eventFrame
	eventDisconnect
)

// event is a per-client transport event. Events from one client share a
// channel so the loop sees them in the order they happened.
type event struct {
	kind   eventKind
	client *Client
	raw    []byte
}

// broadcastRequest is a fan-out submitted from outside the loop.
type broadcastRequest struct {
	all     bool
	room    int64
	env     wire.Envelope
	exclude string
}

// Registry maintains the set of live clients and their room memberships.
type Registry struct {
	// Loop-owned; writes also take mu so that queries can read concurrently.
	clients map[*Client]struct{}
	byID    map[string]*Client
	rooms   map[int64]map[*Client]struct{}
	mu      sync.RWMutex

	events     chan event
	broadcasts chan broadcastRequest
	done       chan struct{}
	doneOnce   sync.Once
	running    atomic.Bool

	telemetry Telemetry
	welcome   string
	pump      PumpConfig
}

// Option configures a Registry.
type Option func(*Registry)

// WithTelemetry replaces the default logging telemetry.
func WithTelemetry(t Telemetry) Option {
	return func(r *Registry) {
		if t != nil {
			r.telemetry = t
		}
	}
}

// WithWelcomeMessage overrides the text of the connect greeting.
func WithWelcomeMessage(msg string) Option {
	return func(r *Registry) {
		if msg != "" {
			r.welcome = msg
		}
	}
}

// WithPumpConfig sets transport timings and queue sizes for new clients.
func WithPumpConfig(p PumpConfig) Option {
	return func(r *Registry) {
		r.pump = p.withDefaults()
	}
}

// NewRegistry creates an empty registry. Call RunWithContext to start it.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		clients:    make(map[*Client]struct{}),
		byID:       make(map[string]*Client),
		rooms:      make(map[int64]map[*Client]struct{}),
		events:     make(chan event, 1024),
		broadcasts: make(chan broadcastRequest, 256),
		done:       make(chan struct{}),
		telemetry:  NewLogTelemetry(),
		welcome:    DefaultWelcomeMessage,
		pump:       DefaultPumpConfig(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunWithContext runs the registry loop until ctx is done. On shutdown every
// client queue is closed so their write pumps send a close frame and exit.
//
// Selection is prioritized: shutdown first, then client events, then
// broadcast requests.
func (r *Registry) RunWithContext(ctx context.Context) error {
	r.running.Store(true)
	defer r.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case ev := <-r.events:
			r.handleEvent(ev)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			r.shutdown(ctx)
			return ctx.Err()
		case ev := <-r.events:
			r.handleEvent(ev)
		case req := <-r.broadcasts:
			if req.all {
				r.broadcastToAll(req.env)
			} else {
				r.broadcastToRoom(req.room, req.env, req.exclude)
			}
		}
	}
}

func (r *Registry) handleEvent(ev event) {
	switch ev.kind {
	case eventConnect:
		r.onConnect(ev.client)
	case eventFrame:
		r.onMessage(ev.client, ev.raw)
	case eventDisconnect:
		r.onDisconnect(ev.client)
	}
}

// Register hands a newly accepted client to the loop.
func (r *Registry) Register(c *Client) error {
	return r.submit(event{kind: eventConnect, client: c})
}

// Unregister reports that a client's transport closed.
func (r *Registry) Unregister(c *Client) error {
	return r.submit(event{kind: eventDisconnect, client: c})
}

// Submit passes one inbound frame from c to the loop.
func (r *Registry) Submit(c *Client, raw []byte) error {
	return r.submit(event{kind: eventFrame, client: c, raw: raw})
}

func (r *Registry) submit(ev event) error {
	select {
	case <-r.done:
		return ErrRegistryStopped
	default:
	}
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return ErrRegistryStopped
	}
}

// BroadcastToRoom queues env for every member of room except the client whose
// id equals exclude. It never blocks; when the request queue is full the
// broadcast is dropped and logged.
func (r *Registry) BroadcastToRoom(room int64, env wire.Envelope, exclude string) {
	r.enqueueBroadcast(broadcastRequest{room: room, env: env, exclude: exclude})
}

// BroadcastToAll queues env for every live client.
func (r *Registry) BroadcastToAll(env wire.Envelope) {
	r.enqueueBroadcast(broadcastRequest{all: true, env: env})
}

func (r *Registry) enqueueBroadcast(req broadcastRequest) {
	select {
	case r.broadcasts <- req:
	default:
		logging.Warn().
			Str("message_type", string(req.env.Type)).
			Int64("event_id", req.room).
			Msg("broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of live clients.
func (r *Registry) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomSize returns the number of members of room.
func (r *Registry) RoomSize(room int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// JoinedRooms returns the sorted rooms joined by the client with id clientID,
// and false if no such client is live.
func (r *Registry) JoinedRooms(clientID string) ([]int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[clientID]
	if !ok {
		return nil, false
	}
	return c.sortedRooms(), true
}

// Running reports whether the loop is active.
func (r *Registry) Running() bool {
	return r.running.Load()
}

// Stop releases goroutines blocked in Register, Unregister or Submit. The loop
// calls it on shutdown; it is safe to call more than once.
func (r *Registry) Stop() {
	r.doneOnce.Do(func() { close(r.done) })
}

// onConnect registers c and greets it.
func (r *Registry) onConnect(c *Client) {
	if _, exists := r.clients[c]; exists {
		return
	}

	r.mu.Lock()
	r.clients[c] = struct{}{}
	r.byID[c.id] = c
	total := len(r.clients)
	r.mu.Unlock()

	r.telemetry.ClientConnected(c.id, total)
	r.sendTo(c, wire.Notice(r.welcome))
}

// onMessage decodes raw and dispatches it. Every failure is answered to the
// sender only, or dropped.
func (r *Registry) onMessage(c *Client, raw []byte) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	frame, err := wire.Decode(raw)
	switch {
	case errors.Is(err, wire.ErrMalformedFrame):
		r.telemetry.FrameRejected(c.id, err)
		r.sendTo(c, wire.ErrorReply("Invalid message format"))
		return
	case errors.Is(err, wire.ErrMissingRoom):
		r.telemetry.FrameRejected(c.id, err)
		r.sendTo(c, wire.ErrorReply(missingRoomReason(raw)))
		return
	case err != nil:
		r.telemetry.FrameRejected(c.id, err)
		r.sendTo(c, wire.ErrorReply("Invalid message format"))
		return
	}

	r.telemetry.FrameReceived(c.id, frame.Kind())
	frame.Accept(&dispatcher{r: r, c: c})
}

// onDisconnect removes c first and then tells each of its rooms, so the
// departing client never receives its own user_left.
func (r *Registry) onDisconnect(c *Client) {
	if _, ok := r.clients[c]; !ok {
		return
	}

	rooms := c.sortedRooms()

	r.mu.Lock()
	delete(r.clients, c)
	delete(r.byID, c.id)
	for _, room := range rooms {
		r.removeMember(room, c)
	}
	c.rooms = make(map[int64]struct{})
	total := len(r.clients)
	r.mu.Unlock()

	close(c.send)
	r.telemetry.ClientDisconnected(c.id, total)

	for _, room := range rooms {
		r.broadcastToRoom(room, wire.UserLeft(room, c.id, c.userID), "")
	}
}

// join adds c to room and reports whether it was a genuine first join.
func (r *Registry) join(c *Client, room int64) bool {
	if _, ok := c.rooms[room]; ok {
		return false
	}
	r.mu.Lock()
	c.rooms[room] = struct{}{}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
	r.mu.Unlock()
	return true
}

// leave removes c from room and reports whether it was a member.
func (r *Registry) leave(c *Client, room int64) bool {
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	r.mu.Lock()
	delete(c.rooms, room)
	r.removeMember(room, c)
	r.mu.Unlock()
	return true
}

// removeMember must be called with mu held.
func (r *Registry) removeMember(room int64, c *Client) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// broadcastToRoom delivers env to every member of room except exclude, in
// connection order.
func (r *Registry) broadcastToRoom(room int64, env wire.Envelope, exclude string) {
	members := r.rooms[room]
	recipients := make([]*Client, 0, len(members))
	for c := range members {
		if c.id != exclude {
			recipients = append(recipients, c)
		}
	}
	r.fanOut(recipients, env, room)
}

// broadcastToAll delivers env to every live client, in connection order.
func (r *Registry) broadcastToAll(env wire.Envelope) {
	recipients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		recipients = append(recipients, c)
	}
	r.fanOut(recipients, env, 0)
}

func (r *Registry) fanOut(recipients []*Client, env wire.Envelope, room int64) {
	sort.Slice(recipients, func(i, j int) bool {
		return recipients[i].seq < recipients[j].seq
	})

	payload, err := wire.Encode(env)
	if err != nil {
		logging.Error().Err(err).Str("message_type", string(env.Type)).Msg("failed to encode broadcast")
		return
	}

	delivered := 0
	for _, c := range recipients {
		if r.deliver(c, payload, env.Type) {
			delivered++
		}
	}
	r.telemetry.Broadcast(env.Type, room, delivered)
}

// sendTo delivers env to a single client.
func (r *Registry) sendTo(c *Client, env wire.Envelope) {
	payload, err := wire.Encode(env)
	if err != nil {
		logging.Error().Err(err).Str("client_id", c.id).Msg("failed to encode reply")
		return
	}
	if r.deliver(c, payload, env.Type) {
		r.telemetry.Broadcast(env.Type, 0, 1)
	}
}

// deliver is a non-blocking enqueue on c's outbound queue.
func (r *Registry) deliver(c *Client, payload []byte, t wire.Type) bool {
	select {
	case c.send <- payload:
		return true
	default:
		r.telemetry.DeliverySkipped(c.id, t)
		return false
	}
}

// shutdown closes every client queue and empties the registry.
func (r *Registry) shutdown(ctx context.Context) {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].seq < clients[j].seq })
	for _, c := range clients {
		close(c.send)
	}
	r.clients = make(map[*Client]struct{})
	r.byID = make(map[string]*Client)
	r.rooms = make(map[int64]map[*Client]struct{})
	r.mu.Unlock()
	r.Stop()

	logging.Info().
		Str("component", "websocket-registry").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", len(clients)).
		Msg("websocket registry stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func missingRoomReason(raw []byte) string {
	env, err := wire.Parse(raw)
	if err == nil && env.Type == wire.TypeChatMessage {
		return "event_id is required for chat_message"
	}
	if err == nil {
		return "eventId is required for " + string(env.Type)
	}
	return "eventId is required"
}
