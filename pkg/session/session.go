package session

import (
	"sync"

	"github.com/pion/rtp"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/webrtc"
)

// Wire is the outbound office surface the session needs: publishing
// signal records and the room exit.
type Wire interface {
	Signal(kind string, to com.Uid, data string) error
	Leave() error
}

// RoomSession is the local view of one joined meeting room: the
// roster of participants and the mapping from participant id to its
// PeerLink. Every store event and every connection callback funnels
// into one loop channel and runs sequentially there, so the link
// bookkeeping holds no locks even though event delivery across
// different remotes is unordered.
//
// Each unordered pair of participants keeps at most one active link,
// dead pairs drop out of the map and duplicate mailbox records are
// deduped by their id.
type RoomSession struct {
	id  com.Uid
	log *logger.Logger

	wire  Wire
	media *MediaSource
	maker LinkMaker

	events chan func()
	done   chan struct{}
	once   sync.Once

	// all of the below is loop-owned
	rid       string
	strategy  Strategy
	links     map[com.Uid]*PeerLink
	roster    map[com.Uid]api.Participant
	seen      map[com.Uid]struct{}
	earlyCand map[com.Uid][]string
	recording bool
	closed    bool

	// assigned before Start, called on the loop except OnPacket
	OnNotice       func(text string)
	OnChat         func(msg api.ChatMessage)
	OnRecord       func(rec api.Recording)
	OnStreamChange func(remote com.Uid, tracks []webrtc.RemoteTrack)
	OnClosed       func(reason string)
	// OnPacket runs on the track reader threads, keep it fast
	OnPacket func(remote com.Uid, track webrtc.RemoteTrack, packet *rtp.Packet)
}

// NewRoomSession starts the session loop. A nil strategy leaves the
// choice to the construction probe at Start, a nil media source
// disables the sample flow.
func NewRoomSession(id com.Uid, wire Wire, media *MediaSource, maker LinkMaker, strategy Strategy, log *logger.Logger) *RoomSession {
	s := &RoomSession{
		id:        id,
		log:       log.Extend(log.With().Str("u", id.Short())),
		wire:      wire,
		media:     media,
		maker:     maker,
		strategy:  strategy,
		events:    make(chan func(), 128),
		done:      make(chan struct{}),
		links:     make(map[com.Uid]*PeerLink),
		roster:    make(map[com.Uid]api.Participant),
		seen:      make(map[com.Uid]struct{}),
		earlyCand: make(map[com.Uid][]string),
	}
	go s.run()
	return s
}

// Start consumes the join snapshot: settle the strategy, absorb the
// roster, then replay the pending signal records addressed to us.
func (s *RoomSession) Start(state api.RoomState) {
	s.post(func() {
		s.rid = state.Rid
		s.recording = state.Recording
		if s.strategy == nil {
			st, notice := ChooseStrategy(s.maker, s.log)
			s.strategy = st
			s.notify(notice)
		} else {
			s.notify(strategyNotice(s.strategy))
		}
		s.log.Info().Msgf("Meeting [%v] over %v", state.Rid, s.strategy.Name())
		for _, p := range state.Users {
			s.handleJoined(p, true)
		}
		for _, sig := range state.Signals {
			s.handleSignal(sig)
		}
		if s.recording {
			// the meeting is being recorded already
			if fn := s.OnRecord; fn != nil {
				fn(api.Recording{Active: true})
			}
		}
	})
}

// HandleEvent routes one office push into the session loop.
func (s *RoomSession) HandleEvent(p com.In) {
	switch api.PT(p.T) {
	case api.UserJoined:
		if rq := api.Unwrap[api.Participant](p.Payload); rq != nil {
			s.post(func() { s.handleJoined(*rq, false) })
		}
	case api.UserLeft:
		if rq := api.Unwrap[api.Participant](p.Payload); rq != nil {
			s.post(func() { s.handleLeft(*rq) })
		}
	case api.Presence:
		if rq := api.Unwrap[api.Participant](p.Payload); rq != nil {
			s.post(func() { s.handlePresence(*rq) })
		}
	case api.Chat:
		if rq := api.Unwrap[api.ChatMessage](p.Payload); rq != nil {
			s.post(func() {
				if fn := s.OnChat; fn != nil {
					fn(*rq)
				}
			})
		}
	case api.RecordMeet:
		if rq := api.Unwrap[api.Recording](p.Payload); rq != nil {
			s.post(func() {
				s.recording = rq.Active
				if fn := s.OnRecord; fn != nil {
					fn(*rq)
				}
			})
		}
	case api.SignalOffer, api.SignalAnswer, api.SignalCandidate:
		if rq := api.Unwrap[api.Signal](p.Payload); rq != nil {
			s.post(func() { s.handleSignal(*rq) })
		}
	case api.MeetingEnded:
		if rq := api.Unwrap[api.CloseNotice](p.Payload); rq != nil {
			s.post(func() { s.shutdown(rq.Reason) })
		}
	case api.Evicted:
		if rq := api.Unwrap[api.CloseNotice](p.Payload); rq != nil {
			s.post(func() { s.shutdown(rq.Reason) })
		}
	default:
		s.log.Debug().Msgf("Unhandled push %v", api.PT(p.T))
	}
}

// Leave exits the room on the user's initiative: the watchers stop
// and every open link closes, in-flight signal writes are not
// cancelled, only their local effects go away.
func (s *RoomSession) Leave() {
	s.post(func() {
		if s.closed {
			return
		}
		if err := s.wire.Leave(); err != nil {
			s.log.Warn().Err(err).Msg("leave was not delivered")
		}
		s.shutdown("left the meeting")
	})
}

func (s *RoomSession) Done() <-chan struct{} { return s.done }

func (s *RoomSession) run() {
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.done:
			return
		}
	}
}

func (s *RoomSession) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// sync runs fn on the loop and waits until it finished.
func (s *RoomSession) sync(fn func()) {
	ran := make(chan struct{})
	s.post(func() { fn(); close(ran) })
	select {
	case <-ran:
	case <-s.done:
	}
}

func (s *RoomSession) notify(text string) {
	if fn := s.OnNotice; fn != nil {
		fn(text)
	}
}

// handleJoined fires at most once per participant-id transition into
// the room, repeated snapshots and pushes for a known id are no-ops.
func (s *RoomSession) handleJoined(p api.Participant, existing bool) {
	if s.closed || p.Id == s.id {
		return
	}
	_, known := s.roster[p.Id]
	s.roster[p.Id] = p
	if known {
		return
	}
	s.log.Info().Msgf("Participant [%v] is here", p.Name)
	if _, ok := s.links[p.Id]; ok {
		// an early offer created the link before the join event
		return
	}
	if s.strategy.Initiates(s.id, p.Id, existing) {
		s.openLink(p.Id)
	} else {
		s.ensureLink(p.Id)
	}
}

// handleLeft closes exactly the link of the leaving id, the other
// pairs stay untouched.
func (s *RoomSession) handleLeft(p api.Participant) {
	if s.closed || p.Id == s.id {
		return
	}
	delete(s.roster, p.Id)
	delete(s.earlyCand, p.Id)
	if link, ok := s.links[p.Id]; ok {
		if s.media != nil {
			s.media.Detach(p.Id)
		}
		link.Close()
		delete(s.links, p.Id)
	}
	s.log.Info().Msgf("Participant [%v] left", p.Name)
}

func (s *RoomSession) handlePresence(p api.Participant) {
	if s.closed || p.Id == s.id {
		return
	}
	if prev, ok := s.roster[p.Id]; ok {
		p.JoinedAt = prev.JoinedAt
		s.roster[p.Id] = p
	}
}

// handleSignal applies one mailbox record. The mailbox delivers at
// least once (a live push and a snapshot replay may carry the same
// record), the id set keeps every record's effect single.
func (s *RoomSession) handleSignal(sig api.Signal) {
	if s.closed || sig.To != s.id {
		return
	}
	if _, dup := s.seen[sig.Id]; dup {
		return
	}
	s.seen[sig.Id] = struct{}{}

	switch sig.Kind {
	case api.SigOffer:
		s.acceptOffer(sig)
	case api.SigAnswer:
		if link, ok := s.links[sig.From]; ok {
			if err := link.ApplyAnswer(sig.Data); err != nil {
				s.log.Error().Err(err).Msg("answer was not applied")
			}
		}
	case api.SigCandidate:
		if link, ok := s.links[sig.From]; ok {
			link.AddCandidate(sig.Data)
		} else {
			// ahead of both the join event and the offer
			s.earlyCand[sig.From] = append(s.earlyCand[sig.From], sig.Data)
		}
	}
}

// openLink creates the pair link and publishes our offer for it.
func (s *RoomSession) openLink(remote com.Uid) {
	link := s.ensureLink(remote)
	if link == nil {
		return
	}
	err := link.SendOffer(s.strategy.Trickle(),
		func(data string) error { return s.wire.Signal(api.SigOffer, remote, data) },
		s.candidateSink(remote))
	if err != nil {
		s.log.Error().Err(err).Str("peer", remote.Short()).Msg("offer failed")
	}
}

// acceptOffer answers a remote offer, creating the link when the
// offer outran the join event.
func (s *RoomSession) acceptOffer(sig api.Signal) {
	link := s.ensureLink(sig.From)
	if link == nil {
		return
	}
	err := link.AcceptOffer(sig.Data, s.strategy.Trickle(),
		func(data string) error { return s.wire.Signal(api.SigAnswer, sig.From, data) },
		s.candidateSink(sig.From))
	if err != nil {
		s.log.Error().Err(err).Str("peer", sig.From.Short()).Msg("offer was not answered")
	}
}

// ensureLink returns the pair link, constructing and wiring a new
// one when the id has none yet.
func (s *RoomSession) ensureLink(remote com.Uid) *PeerLink {
	if link, ok := s.links[remote]; ok {
		return link
	}
	conn, err := s.maker()
	if err != nil {
		s.log.Error().Err(err).Str("peer", remote.Short()).Msg("link construction failed")
		return nil
	}
	link := newLink(remote, conn, s.log)
	conn.OnConnect(func() { s.post(func() { s.linkUp(remote) }) })
	conn.OnClose(func() { s.post(func() { s.dropLink(remote) }) })
	conn.OnStreamChange(func(tracks []webrtc.RemoteTrack) {
		s.post(func() {
			if fn := s.OnStreamChange; fn != nil {
				fn(remote, tracks)
			}
		})
	})
	conn.OnPacket(func(tr webrtc.RemoteTrack, pkt *rtp.Packet) {
		if fn := s.OnPacket; fn != nil {
			fn(remote, tr, pkt)
		}
	})
	s.links[remote] = link
	for _, c := range s.earlyCand[remote] {
		link.AddCandidate(c)
	}
	delete(s.earlyCand, remote)
	return link
}

func (s *RoomSession) linkUp(remote com.Uid) {
	link, ok := s.links[remote]
	if !ok {
		return
	}
	link.setConnected()
	if s.media != nil {
		s.media.Attach(remote, link.Connection())
	}
	s.log.Info().Msgf("Connected to [%v]", s.displayName(remote))
}

// dropLink reacts to a transport-initiated close. The pair is done
// for, a fresh inbound offer would negotiate a new link.
func (s *RoomSession) dropLink(remote com.Uid) {
	link, ok := s.links[remote]
	if !ok {
		return
	}
	if s.media != nil {
		s.media.Detach(remote)
	}
	link.Close()
	delete(s.links, remote)
	s.log.Info().Msgf("Link to [%v] is gone", s.displayName(remote))
}

// shutdown ends the session: terminal, all links close at once.
func (s *RoomSession) shutdown(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	for id, link := range s.links {
		if s.media != nil {
			s.media.Detach(id)
		}
		link.Close()
	}
	s.links = make(map[com.Uid]*PeerLink)
	s.roster = make(map[com.Uid]api.Participant)
	s.earlyCand = make(map[com.Uid][]string)
	s.log.Info().Msgf("Session [%v] closed: %v", s.rid, reason)
	if fn := s.OnClosed; fn != nil {
		fn(reason)
	}
	s.once.Do(func() { close(s.done) })
}

func (s *RoomSession) candidateSink(remote com.Uid) func(string) {
	return func(data string) {
		if err := s.wire.Signal(api.SigCandidate, remote, data); err != nil {
			s.log.Warn().Err(err).Msg("candidate was not published")
		}
	}
}

func (s *RoomSession) displayName(id com.Uid) string {
	if p, ok := s.roster[id]; ok && p.Name != "" {
		return p.Name
	}
	return id.Short()
}

func strategyNotice(s Strategy) string {
	if s.Name() == (Simple{}).Name() {
		return NoticeSimple
	}
	return NoticeMesh
}
