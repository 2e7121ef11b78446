package session

import (
	"time"

	"github.com/pion/rtp"

	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/webrtc"
)

type LinkState uint8

// The link lifecycle. Closed is terminal, a closed pair never signals
// again and a stalled negotiation just never reaches LinkConnected,
// there is no retry.
const (
	LinkCreated LinkState = iota
	LinkOfferSent
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkCreated:
		return "created"
	case LinkOfferSent:
		return "offer-sent"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Connection is the negotiation and media surface of one underlying
// peer connection. PionConnection adapts the real stack, tests plug
// in a scripted one.
type Connection interface {
	Offer(trickle bool, candidates func(string)) (string, error)
	Answer(data string, trickle bool, candidates func(string)) (string, error)
	SetAnswer(data string) error
	AddCandidate(data string) error

	OnConnect(func())
	OnClose(func())
	OnStreamChange(func([]webrtc.RemoteTrack))
	OnPacket(func(webrtc.RemoteTrack, *rtp.Packet))

	SendAudio(data []byte, dur time.Duration)
	SendVideo(data []byte, dur time.Duration)
	RemoteTracks() []webrtc.RemoteTrack
	Disconnect()
}

// LinkMaker builds one ready to negotiate Connection. Construction
// errors surface at the strategy probe and at link creation.
type LinkMaker func() (Connection, error)

// PeerLink pairs the local participant with one remote: it owns one
// peer connection and the remote inbound stream, while the outbound
// media is shared across all links. All methods run on the session
// loop, the link itself carries no lock.
type PeerLink struct {
	remote com.Uid
	conn   Connection
	log    *logger.Logger

	state LinkState
	// remote description applied, candidates may flow directly
	remoteSet bool
	// candidates received ahead of the remote description
	pending []string
}

func newLink(remote com.Uid, conn Connection, log *logger.Logger) *PeerLink {
	return &PeerLink{
		remote: remote,
		conn:   conn,
		log:    log.Extend(log.With().Str("peer", remote.Short())),
		state:  LinkCreated,
	}
}

func (l *PeerLink) Remote() com.Uid        { return l.remote }
func (l *PeerLink) State() LinkState       { return l.state }
func (l *PeerLink) Connection() Connection { return l.conn }

// SendOffer publishes the local offer for the pair, at most once per
// link. With trickle the candidates stream through the callback,
// otherwise they ride along inside the description.
func (l *PeerLink) SendOffer(trickle bool, offer func(data string) error, candidate func(data string)) error {
	if l.state != LinkCreated {
		return nil
	}
	data, err := l.conn.Offer(trickle, candidate)
	if err != nil {
		return err
	}
	if err = offer(data); err != nil {
		return err
	}
	l.state = LinkOfferSent
	l.log.Debug().Msgf("Link %v", l.state)
	return nil
}

// AcceptOffer applies a remote offer and publishes the local answer.
// The responder side never leaves created until the transport
// connects.
func (l *PeerLink) AcceptOffer(data string, trickle bool, answer func(data string) error, candidate func(data string)) error {
	if l.state == LinkClosed {
		return nil
	}
	out, err := l.conn.Answer(data, trickle, candidate)
	if err != nil {
		return err
	}
	l.remoteSet = true
	l.flushPending()
	return answer(out)
}

// ApplyAnswer applies the remote answer to the sent offer exactly
// once, duplicate records are dropped here even when the mailbox
// replays them.
func (l *PeerLink) ApplyAnswer(data string) error {
	if l.state != LinkOfferSent || l.remoteSet {
		return nil
	}
	if err := l.conn.SetAnswer(data); err != nil {
		return err
	}
	l.remoteSet = true
	l.flushPending()
	return nil
}

// AddCandidate feeds one remote candidate in, buffering it while the
// remote description is not applied yet.
func (l *PeerLink) AddCandidate(data string) {
	if l.state == LinkClosed {
		return
	}
	if !l.remoteSet {
		l.pending = append(l.pending, data)
		return
	}
	if err := l.conn.AddCandidate(data); err != nil {
		l.log.Warn().Err(err).Msg("candidate was not applied")
	}
}

func (l *PeerLink) flushPending() {
	for _, c := range l.pending {
		if err := l.conn.AddCandidate(c); err != nil {
			l.log.Warn().Err(err).Msg("buffered candidate was not applied")
		}
	}
	l.pending = nil
}

// setConnected marks the transport up, tracked through the
// connection's own state change and not verified independently.
func (l *PeerLink) setConnected() {
	if l.state == LinkClosed {
		return
	}
	l.state = LinkConnected
	l.log.Debug().Msgf("Link %v", l.state)
}

// Close tears the pair down. Terminal.
func (l *PeerLink) Close() {
	if l.state == LinkClosed {
		return
	}
	l.state = LinkClosed
	l.pending = nil
	l.conn.Disconnect()
	l.log.Debug().Msgf("Link %v", l.state)
}

// PionConnection adapts the pion-backed peer to the Connection
// surface, the callback fields become setters.
type PionConnection struct{ peer *webrtc.Peer }

func NewPionConnection(peer *webrtc.Peer) *PionConnection { return &PionConnection{peer: peer} }

func (p *PionConnection) Offer(trickle bool, candidates func(string)) (string, error) {
	return p.peer.Offer(trickle, candidates)
}

func (p *PionConnection) Answer(data string, trickle bool, candidates func(string)) (string, error) {
	return p.peer.Answer(data, trickle, candidates)
}

func (p *PionConnection) SetAnswer(data string) error    { return p.peer.SetAnswer(data) }
func (p *PionConnection) AddCandidate(data string) error { return p.peer.AddCandidate(data) }

func (p *PionConnection) OnConnect(fn func()) { p.peer.OnConnect = fn }
func (p *PionConnection) OnClose(fn func())   { p.peer.OnClose = fn }
func (p *PionConnection) OnStreamChange(fn func([]webrtc.RemoteTrack)) {
	p.peer.OnStreamChange = fn
}
func (p *PionConnection) OnPacket(fn func(webrtc.RemoteTrack, *rtp.Packet)) {
	p.peer.OnPacket = fn
}

func (p *PionConnection) SendAudio(data []byte, dur time.Duration) { p.peer.SendAudio(data, dur) }
func (p *PionConnection) SendVideo(data []byte, dur time.Duration) { p.peer.SendVideo(data, dur) }
func (p *PionConnection) RemoteTracks() []webrtc.RemoteTrack       { return p.peer.RemoteTracks() }
func (p *PionConnection) Disconnect()                              { p.peer.Disconnect() }
