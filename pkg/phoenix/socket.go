package phoenix

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
	"go.uber.org/zap"
)

// Socket multiplexes one transport session across many per-topic channels.
// A single coordinator goroutine owns the session and the topic routing map;
// joins, leaves and timeouts arrive as commands so the dispatch loop never
// races caller-driven mutation.
type Socket struct {
	cfg    *Config
	dialer Dialer
	logger *logging.ColoredLogger
	clock  clock.Clock
	id     string

	cmds    chan command
	closing chan struct{} // closed by Close()
	done    chan struct{} // closed when the coordinator exits
	closeMu sync.Once

	refCounter atomic.Uint64

	// Coordinator-owned state. Only the run goroutine touches these.
	session       Session
	channels      map[string]*Channel
	pendingJoins  map[string]*pendingJoin
	pendingLeaves map[string]*pendingLeave
	heartbeat     *heartbeatDriver

	framesRouted   atomic.Uint64
	framesDropped  atomic.Uint64
	framesOrphaned atomic.Uint64
	reconnects     atomic.Uint64
}

// Stats is a snapshot of the socket's routing counters.
type Stats struct {
	FramesRouted   uint64
	FramesDropped  uint64
	FramesOrphaned uint64
	Reconnects     uint64
}

type command interface{}

type joinRequest struct {
	topic  string
	result chan joinResult
}

type joinResult struct {
	sub *Subscription
	err error
}

// joinExpire aborts a pending join. An empty ref matches any in-flight
// attempt for the topic; a rejoin watchdog pins the ref so it cannot expire
// a newer attempt.
type joinExpire struct {
	topic string
	ref   string
}

type leaveRequest struct {
	topic  string
	result chan error
}

type leaveExpire struct {
	topic string
	ref   string
}

type pendingJoin struct {
	ref     string
	rejoin  bool
	waiters []chan joinResult
}

type pendingLeave struct {
	ref     string
	waiters []chan error
}

// Connect dials the endpoint through the given dialer and starts the
// coordinator and heartbeat driver. A nil config uses DefaultConfig; a nil
// logger discards all output.
func Connect(ctx context.Context, cfg *Config, dialer Dialer, logger *logging.ColoredLogger) (*Socket, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	session, err := dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}

	s := &Socket{
		cfg:           cfg,
		dialer:        dialer,
		logger:        logger,
		clock:         cfg.clock(),
		id:            uuid.New().String(),
		cmds:          make(chan command, 32),
		closing:       make(chan struct{}),
		done:          make(chan struct{}),
		session:       session,
		channels:      make(map[string]*Channel),
		pendingJoins:  make(map[string]*pendingJoin),
		pendingLeaves: make(map[string]*pendingLeave),
	}

	s.logger.ComponentInfo(logging.ComponentSocket, "connected",
		zap.String("socket_id", s.id))

	s.startHeartbeat()
	go s.run()
	return s, nil
}

// Join subscribes to a topic. If a channel for the topic already exists the
// returned subscription shares its delivery queue; at most one join frame is
// ever in flight per topic.
func (s *Socket) Join(ctx context.Context, topic string) (*Subscription, error) {
	result := make(chan joinResult, 1)
	if err := s.command(ctx, joinRequest{topic: topic, result: result}); err != nil {
		return nil, err
	}

	timer := s.clock.Timer(s.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case r := <-result:
		return r.sub, r.err
	case <-timer.C:
		_ = s.command(context.Background(), joinExpire{topic: topic})
		return nil, &JoinError{Topic: topic, Reason: "timeout", Err: ErrJoinTimeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSocketClosed
	}
}

// leave issues the leave handshake for a topic. The channel is closed and
// removed from routing even when the acknowledgement never arrives.
func (s *Socket) leave(ctx context.Context, topic string) error {
	result := make(chan error, 1)
	if err := s.command(ctx, leaveRequest{topic: topic, result: result}); err != nil {
		if err == ErrSocketClosed {
			// Socket teardown already closed every channel.
			return nil
		}
		return err
	}

	timer := s.clock.Timer(s.cfg.LeaveTimeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		_ = s.command(context.Background(), leaveExpire{topic: topic})
		return &LeaveError{Topic: topic, Err: ErrLeaveTimeout}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return nil
	}
}

// Close shuts the socket down: every channel is closed cleanly and the
// transport session is torn down. Blocks until the coordinator has exited.
func (s *Socket) Close() error {
	s.closeMu.Do(func() { close(s.closing) })
	<-s.done
	return nil
}

// Stats returns a snapshot of the routing counters.
func (s *Socket) Stats() Stats {
	return Stats{
		FramesRouted:   s.framesRouted.Load(),
		FramesDropped:  s.framesDropped.Load(),
		FramesOrphaned: s.framesOrphaned.Load(),
		Reconnects:     s.reconnects.Load(),
	}
}

func (s *Socket) command(ctx context.Context, cmd command) error {
	select {
	case s.cmds <- cmd:
		return nil
	case <-s.done:
		return ErrSocketClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Socket) nextRef() string {
	return strconv.FormatUint(s.refCounter.Add(1), 10)
}

func (s *Socket) startHeartbeat() {
	s.heartbeat = newHeartbeatDriver(s.session, s.clock,
		s.cfg.HeartbeatInterval, s.cfg.HeartbeatTimeoutFactor, s.nextRef, s.logger)
	go s.heartbeat.run()
}

// run is the coordinator loop: dispatch until the session dies, then
// reconnect and rejoin, until the caller closes the socket or the backoff
// budget is exhausted.
func (s *Socket) run() {
	defer close(s.done)

	for {
		userClosed := !s.dispatch()
		s.heartbeat.Stop()
		_ = s.session.Close()

		if userClosed {
			s.teardown(nil)
			return
		}

		session, err := s.reconnect()
		if err == ErrSocketClosed {
			// User closed the socket while reconnecting.
			s.teardown(nil)
			return
		}
		if err != nil {
			s.teardown(err)
			return
		}
		s.session = session
		s.startHeartbeat()
		s.rejoinAll()
	}
}

// dispatch serves commands and inbound frames for the current session.
// Returns false when the user closed the socket, true on session loss.
func (s *Socket) dispatch() bool {
	inbound := s.session.Inbound()
	for {
		select {
		case <-s.closing:
			return false
		case cmd := <-s.cmds:
			s.handleCommand(cmd)
		case msg, ok := <-inbound:
			if !ok {
				s.logger.ComponentWarn(logging.ComponentSocket, "session lost",
					zap.String("socket_id", s.id))
				return true
			}
			s.handleInbound(msg)
		}
	}
}

func (s *Socket) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case joinRequest:
		s.handleJoinRequest(c)
	case joinExpire:
		s.handleJoinExpire(c)
	case leaveRequest:
		s.handleLeaveRequest(c)
	case leaveExpire:
		s.handleLeaveExpire(c)
	}
}

func (s *Socket) handleJoinRequest(req joinRequest) {
	if ch, ok := s.channels[req.topic]; ok && !ch.State().Terminal() {
		if pj, pending := s.pendingJoins[req.topic]; pending {
			// A join handshake is already in flight; share its outcome.
			pj.waiters = append(pj.waiters, req.result)
			return
		}
		switch ch.State() {
		case StateJoined:
			req.result <- joinResult{sub: newSubscription(s, ch)}
		default:
			req.result <- joinResult{err: &JoinError{
				Topic:  req.topic,
				Reason: "channel is " + ch.State().String(),
			}}
		}
		return
	}

	ref := s.nextRef()
	ch := newChannel(req.topic, s.cfg.QueueSize, s.logger)
	ch.joinRef = ref
	s.channels[req.topic] = ch
	s.pendingJoins[req.topic] = &pendingJoin{ref: ref, waiters: []chan joinResult{req.result}}

	s.logger.ComponentInfo(logging.ComponentSocket, "joining topic",
		zap.String("topic", req.topic),
		zap.String("ref", ref))

	if err := s.session.Send(joinMessage(req.topic, ref)); err != nil {
		s.logger.ComponentWarn(logging.ComponentSocket, "join frame send failed",
			zap.String("topic", req.topic),
			zap.Error(err))
		s.failJoin(req.topic, &JoinError{Topic: req.topic, Err: err})
	}
}

func (s *Socket) handleJoinExpire(c joinExpire) {
	pj, ok := s.pendingJoins[c.topic]
	if !ok || (c.ref != "" && pj.ref != c.ref) {
		return
	}
	if pj.rejoin {
		s.failJoin(c.topic, &RejoinError{Topic: c.topic, Err: ErrJoinTimeout})
		return
	}
	s.failJoin(c.topic, &JoinError{Topic: c.topic, Reason: "timeout", Err: ErrJoinTimeout})
}

// failJoin terminates a pending join: the channel errors out, routing
// forgets the topic and every waiter is notified.
func (s *Socket) failJoin(topic string, err error) {
	pj := s.pendingJoins[topic]
	delete(s.pendingJoins, topic)

	if ch, ok := s.channels[topic]; ok {
		ch.fail(err)
		delete(s.channels, topic)
	}
	if pj != nil {
		for _, w := range pj.waiters {
			w <- joinResult{err: err}
		}
	}
}

func (s *Socket) handleLeaveRequest(req leaveRequest) {
	ch, ok := s.channels[req.topic]
	if !ok || ch.State().Terminal() {
		req.result <- nil
		return
	}
	if pl, pending := s.pendingLeaves[req.topic]; pending {
		pl.waiters = append(pl.waiters, req.result)
		return
	}

	// A leave while the join is still unresolved cancels the join and closes
	// locally; the leave frame is sent best-effort in case the server already
	// admitted us.
	if pj, pending := s.pendingJoins[req.topic]; pending {
		delete(s.pendingJoins, req.topic)
		for _, w := range pj.waiters {
			w <- joinResult{err: &JoinError{Topic: req.topic, Reason: "canceled by leave"}}
		}
		_ = s.session.Send(leaveMessage(req.topic, s.nextRef()))
		ch.closeClean()
		delete(s.channels, req.topic)
		req.result <- nil
		return
	}

	ref := s.nextRef()
	ch.transition(StateLeaving)
	s.pendingLeaves[req.topic] = &pendingLeave{ref: ref, waiters: []chan error{req.result}}

	s.logger.ComponentInfo(logging.ComponentSocket, "leaving topic",
		zap.String("topic", req.topic),
		zap.String("ref", ref))

	if err := s.session.Send(leaveMessage(req.topic, ref)); err != nil {
		// The session is going away; favor local cleanup over the handshake.
		s.logger.ComponentWarn(logging.ComponentSocket, "leave frame send failed, closing locally",
			zap.String("topic", req.topic),
			zap.Error(err))
		s.finishLeave(req.topic, &LeaveError{Topic: req.topic, Err: err})
	}
}

func (s *Socket) handleLeaveExpire(c leaveExpire) {
	pl, ok := s.pendingLeaves[c.topic]
	if !ok || (c.ref != "" && pl.ref != c.ref) {
		return
	}
	s.logger.ComponentWarn(logging.ComponentSocket, "leave ack timed out, closing locally",
		zap.String("topic", c.topic))
	s.finishLeave(c.topic, &LeaveError{Topic: c.topic, Err: ErrLeaveTimeout})
}

// finishLeave closes the channel locally and removes it from routing,
// regardless of whether the remote ever acknowledged.
func (s *Socket) finishLeave(topic string, err error) {
	pl := s.pendingLeaves[topic]
	delete(s.pendingLeaves, topic)

	if ch, ok := s.channels[topic]; ok {
		ch.closeClean()
		delete(s.channels, topic)
	}
	if pl != nil {
		for _, w := range pl.waiters {
			w <- err
		}
	}
}

func (s *Socket) handleInbound(msg *Message) {
	s.heartbeat.touch(s.clock.Now())

	switch {
	case msg.Topic == TopicPhoenix:
		s.logger.ComponentDebug(logging.ComponentSocket, "heartbeat ack",
			zap.String("ref", msg.Ref))

	case msg.IsReply():
		s.handleReply(msg)

	case msg.Event == EventClose:
		if _, ok := s.channels[msg.Topic]; ok {
			s.logger.ComponentInfo(logging.ComponentSocket, "channel closed by server",
				zap.String("topic", msg.Topic))
			// Resolves any pending leave waiters too: a phx_close while a
			// leave is in flight counts as the acknowledgement.
			s.finishLeave(msg.Topic, nil)
		}

	case msg.Event == EventError:
		s.logger.ComponentWarn(logging.ComponentSocket, "channel errored by server",
			zap.String("topic", msg.Topic))
		if _, pending := s.pendingJoins[msg.Topic]; pending {
			s.failJoin(msg.Topic, &JoinError{Topic: msg.Topic, Reason: EventError})
		} else if ch, ok := s.channels[msg.Topic]; ok {
			ch.fail(ErrChannelErrored)
			delete(s.channels, msg.Topic)
		}

	default:
		s.routeBroadcast(msg)
	}
}

// routeBroadcast delivers an event frame to the channel owning its topic.
// Orphaned frames (no channel, or a race with a leave) are dropped and
// counted, never fatal.
func (s *Socket) routeBroadcast(msg *Message) {
	ch, ok := s.channels[msg.Topic]
	if !ok || ch.State().Terminal() {
		s.framesOrphaned.Add(1)
		s.logger.ComponentDebug(logging.ComponentSocket, "dropping orphaned frame",
			zap.String("topic", msg.Topic),
			zap.String("event", msg.Event))
		return
	}
	if ch.deliver(msg) {
		s.framesRouted.Add(1)
	} else {
		s.framesDropped.Add(1)
	}
}

func (s *Socket) handleReply(msg *Message) {
	if pj, ok := s.pendingJoins[msg.Topic]; ok && pj.ref == msg.Ref {
		s.resolveJoin(msg, pj)
		return
	}
	if pl, ok := s.pendingLeaves[msg.Topic]; ok && pl.ref == msg.Ref {
		s.finishLeave(msg.Topic, nil)
		return
	}
	s.logger.ComponentDebug(logging.ComponentSocket, "uncorrelated reply",
		zap.String("topic", msg.Topic),
		zap.String("ref", msg.Ref))
}

func (s *Socket) resolveJoin(msg *Message, pj *pendingJoin) {
	topic := msg.Topic
	ch := s.channels[topic]
	if ch == nil {
		delete(s.pendingJoins, topic)
		return
	}

	reply, err := msg.DecodeReply()
	if err != nil || reply.Status != StatusOK {
		reason := "undecodable reply"
		if err == nil {
			reason = reply.Status
			if len(reply.Response) > 0 {
				reason = reply.Status + ": " + string(reply.Response)
			}
		}
		if pj.rejoin {
			s.failJoin(topic, &RejoinError{Topic: topic, Err: &JoinError{Topic: topic, Reason: reason}})
		} else {
			s.failJoin(topic, &JoinError{Topic: topic, Reason: reason})
		}
		return
	}

	delete(s.pendingJoins, topic)
	ch.transition(StateJoined)
	s.logger.ComponentInfo(logging.ComponentSocket, "joined topic",
		zap.String("topic", topic),
		zap.Bool("rejoin", pj.rejoin))

	for _, w := range pj.waiters {
		w <- joinResult{sub: newSubscription(s, ch)}
	}
}

// reconnect redials with the configured backoff. Returns an error only when
// the attempt budget is exhausted or the socket is closed while waiting.
func (s *Socket) reconnect() (Session, error) {
	bo := s.cfg.Backoff
	for attempt := 0; ; attempt++ {
		if bo.Exhausted(attempt) {
			s.logger.ComponentError(logging.ComponentSocket, "reconnect attempts exhausted",
				zap.Int("attempts", attempt))
			return nil, ErrReconnectExhausted
		}

		delay := bo.Delay(attempt)
		s.logger.ComponentInfo(logging.ComponentSocket, "reconnecting",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		select {
		case <-s.clock.After(delay):
		case <-s.closing:
			return nil, ErrSocketClosed
		}

		session, err := s.dialer.Dial(context.Background())
		if err != nil {
			s.logger.ComponentWarn(logging.ComponentSocket, "reconnect attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		s.reconnects.Add(1)
		s.logger.ComponentInfo(logging.ComponentSocket, "reconnected",
			zap.String("socket_id", s.id))
		return session, nil
	}
}

// rejoinAll re-sends a join frame for every still-registered channel after a
// reconnect. Channels waiting on a pre-disconnect join are folded into the
// rejoin so their waiters resolve against the new handshake.
func (s *Socket) rejoinAll() {
	// Leaves interrupted by the disconnect just close locally.
	for topic := range s.pendingLeaves {
		s.finishLeave(topic, nil)
	}

	for topic, ch := range s.channels {
		if ch.State().Terminal() {
			delete(s.channels, topic)
			continue
		}

		ref := s.nextRef()
		if ch.State() != StateJoining {
			ch.transition(StateJoining)
		}
		ch.joinRef = ref

		if pj, ok := s.pendingJoins[topic]; ok {
			pj.ref = ref
			pj.rejoin = true
		} else {
			s.pendingJoins[topic] = &pendingJoin{ref: ref, rejoin: true}
		}

		s.logger.ComponentInfo(logging.ComponentSocket, "rejoining topic",
			zap.String("topic", topic),
			zap.String("ref", ref))

		if err := s.session.Send(joinMessage(topic, ref)); err != nil {
			// Session died already; the next dispatch round will reconnect
			// and retry the remaining channels.
			s.logger.ComponentWarn(logging.ComponentSocket, "rejoin frame send failed",
				zap.String("topic", topic),
				zap.Error(err))
			return
		}

		go s.watchRejoin(topic, ref)
	}
}

// watchRejoin expires an unacknowledged rejoin after the join timeout. The
// expiry is pinned to the ref so it cannot abort a newer handshake.
func (s *Socket) watchRejoin(topic, ref string) {
	timer := s.clock.Timer(s.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		_ = s.command(context.Background(), joinExpire{topic: topic, ref: ref})
	case <-s.done:
	}
}

// teardown resolves all remaining state when the coordinator exits. A nil
// cause is a clean user-initiated close; otherwise channels error out so
// receivers observe why their subscription died.
func (s *Socket) teardown(cause error) {
	for topic, pj := range s.pendingJoins {
		err := cause
		if err == nil {
			err = ErrSocketClosed
		}
		for _, w := range pj.waiters {
			w <- joinResult{err: &JoinError{Topic: topic, Err: err}}
		}
	}
	s.pendingJoins = make(map[string]*pendingJoin)

	for topic := range s.pendingLeaves {
		s.finishLeave(topic, nil)
	}

	for topic, ch := range s.channels {
		if cause == nil {
			ch.closeClean()
		} else {
			ch.fail(&RejoinError{Topic: topic, Err: cause})
		}
		delete(s.channels, topic)
	}

	s.logger.ComponentInfo(logging.ComponentSocket, "socket closed",
		zap.String("socket_id", s.id),
		zap.Uint64("frames_routed", s.framesRouted.Load()),
		zap.Uint64("frames_dropped", s.framesDropped.Load()),
		zap.Uint64("frames_orphaned", s.framesOrphaned.Load()))
}
