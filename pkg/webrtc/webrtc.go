package webrtc

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Peer is a single audio-video link to another meeting participant.
// Both outgoing tracks are plugged in upfront, so mute and camera
// switches don't renegotiate the session, they only pause the sample
// flow on the sender side.
type Peer struct {
	api  *ApiFactory
	conn *webrtc.PeerConnection
	log  *logger.Logger

	OnConnect      func()
	OnClose        func()
	OnStreamChange func(tracks []RemoteTrack)
	OnPacket       func(track RemoteTrack, packet *rtp.Packet)

	a *webrtc.TrackLocalStaticSample
	v *webrtc.TrackLocalStaticSample

	mu      sync.Mutex
	remotes map[webrtc.SSRC]RemoteTrack
	once    sync.Once
}

// RemoteTrack describes one incoming media track of the remote side.
type RemoteTrack struct {
	Id     string
	Stream string
	Kind   string
	Mime   string
}

var samplePool sync.Pool

// gatherWait caps full ICE gathering when the candidates are bundled
// into the session description instead of being trickled.
const gatherWait = 3 * time.Second

func New(log *logger.Logger, api *ApiFactory) *Peer {
	return &Peer{api: api, log: log, remotes: make(map[webrtc.SSRC]RemoteTrack)}
}

// Init allocates the underlying connection and plugs in both outgoing
// tracks under the given stream id.
func (p *Peer) Init(stream string, aCodec string, vCodec string) (err error) {
	p.log.Debug().Msg("WebRTC start")
	if p.conn, err = p.api.NewPeer(); err != nil {
		return err
	}
	// plug in the [audio] track (out)
	if p.a, err = p.addTrack("audio", stream, aCodec); err != nil {
		return err
	}
	// plug in the [video] track (out)
	if p.v, err = p.addTrack("video", stream, vCodec); err != nil {
		return err
	}
	p.conn.OnTrack(p.handleTrack)
	p.conn.OnICEConnectionStateChange(p.handleICEState)
	return nil
}

// Offer creates a local offer encoded for the signal mailbox. With
// trickle enabled the gathered candidates stream through the callback
// as they appear, otherwise the call blocks until the offer carries
// the whole candidate set.
func (p *Peer) Offer(trickle bool, candidates func(candidate string)) (string, error) {
	if trickle {
		p.onICECandidate(candidates)
	}
	offer, err := p.conn.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	p.log.Debug().Msg("Created Offer")
	var gathered <-chan struct{}
	if !trickle {
		gathered = webrtc.GatheringCompletePromise(p.conn)
	}
	if err = p.conn.SetLocalDescription(offer); err != nil {
		return "", err
	}
	if !trickle {
		select {
		case <-gathered:
		case <-time.After(gatherWait):
			p.log.Warn().Msg("ICE gathering timed out, sending a partial offer")
		}
		return Encode(p.conn.LocalDescription())
	}
	return Encode(&offer)
}

// Answer applies a remote offer and returns the encoded local answer.
// Candidate handling mirrors Offer.
func (p *Peer) Answer(data string, trickle bool, candidates func(candidate string)) (string, error) {
	var offer webrtc.SessionDescription
	if err := Decode(data, &offer); err != nil {
		return "", err
	}
	if err := p.conn.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	if trickle {
		p.onICECandidate(candidates)
	}
	answer, err := p.conn.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	p.log.Debug().Msg("Created Answer")
	var gathered <-chan struct{}
	if !trickle {
		gathered = webrtc.GatheringCompletePromise(p.conn)
	}
	if err = p.conn.SetLocalDescription(answer); err != nil {
		return "", err
	}
	if !trickle {
		select {
		case <-gathered:
		case <-time.After(gatherWait):
			p.log.Warn().Msg("ICE gathering timed out, sending a partial answer")
		}
		return Encode(p.conn.LocalDescription())
	}
	return Encode(&answer)
}

// SetAnswer applies the remote answer to a previously sent offer.
func (p *Peer) SetAnswer(data string) error {
	var answer webrtc.SessionDescription
	if err := Decode(data, &answer); err != nil {
		return err
	}
	if err := p.conn.SetRemoteDescription(answer); err != nil {
		p.log.Error().Err(err).Msg("Set remote description from peer failed")
		return err
	}
	p.log.Debug().Msg("Set Remote Description")
	return nil
}

func (p *Peer) AddCandidate(data string) error {
	var candidate webrtc.ICECandidateInit
	if err := Decode(data, &candidate); err != nil {
		return err
	}
	if p.conn.ConnectionState() >= webrtc.PeerConnectionStateDisconnected {
		// late candidates replayed from the mailbox are no-ops
		return nil
	}
	if err := p.conn.AddICECandidate(candidate); err != nil {
		return err
	}
	p.log.Debug().Str("candidate", candidate.Candidate).Msg("Ice")
	return nil
}

func (p *Peer) SendAudio(data []byte, dur time.Duration) {
	if err := p.send(data, dur, p.a.WriteSample); err != nil {
		p.log.Error().Err(err).Send()
	}
}

func (p *Peer) SendVideo(data []byte, dur time.Duration) {
	if err := p.send(data, dur, p.v.WriteSample); err != nil {
		p.log.Error().Err(err).Send()
	}
}

func (p *Peer) send(data []byte, duration time.Duration, fn func(media.Sample) error) error {
	sample, _ := samplePool.Get().(*media.Sample)
	if sample == nil {
		sample = new(media.Sample)
	}
	sample.Data = data
	sample.Duration = duration
	err := fn(*sample)
	if err != nil {
		return err
	}
	samplePool.Put(sample)
	return nil
}

// RemoteTracks lists the currently flowing incoming tracks.
func (p *Peer) RemoteTracks() []RemoteTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	tracks := make([]RemoteTrack, 0, len(p.remotes))
	for _, t := range p.remotes {
		tracks = append(tracks, t)
	}
	return tracks
}

func (p *Peer) Disconnect() {
	if p.conn == nil {
		return
	}
	if p.conn.ConnectionState() < webrtc.PeerConnectionStateDisconnected {
		// ignore this due to DTLS fatal: conn is closed
		_ = p.conn.Close()
	}
	p.once.Do(func() {
		if p.OnClose != nil {
			p.OnClose()
		}
	})
	p.log.Debug().Msg("WebRTC stop")
}

func (p *Peer) addTrack(id string, stream string, codec string) (*webrtc.TrackLocalStaticSample, error) {
	track, err := newTrack(id, stream, codec)
	if err != nil {
		return nil, err
	}
	sender, err := p.conn.AddTrack(track)
	if err != nil {
		return nil, err
	}
	// Read incoming RTCP packets
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()
	p.log.Debug().Msgf("Added [%s] track", track.Codec().MimeType)
	return track, nil
}

func newTrack(id string, label string, codec string) (*webrtc.TrackLocalStaticSample, error) {
	codec = strings.ToLower(codec)
	var mime string
	switch id {
	case "audio":
		switch codec {
		case "opus":
			mime = webrtc.MimeTypeOpus
		}
	case "video":
		switch codec {
		case "h264":
			mime = webrtc.MimeTypeH264
		case "vpx", "vp8":
			mime = webrtc.MimeTypeVP8
		case "vp9":
			mime = webrtc.MimeTypeVP9
		}
	}
	if mime == "" {
		return nil, fmt.Errorf("unsupported codec %s:%s", id, codec)
	}
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mime}, id, label)
}

func (p *Peer) handleTrack(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	track := RemoteTrack{Id: tr.ID(), Stream: tr.StreamID(), Kind: tr.Kind().String(), Mime: tr.Codec().MimeType}
	p.log.Debug().Msgf("Got [%s] track", track.Mime)
	p.mu.Lock()
	p.remotes[tr.SSRC()] = track
	p.mu.Unlock()
	p.streamChange()
	for {
		packet, _, err := tr.ReadRTP()
		if err != nil {
			break
		}
		if fn := p.OnPacket; fn != nil {
			fn(track, packet)
		}
	}
	p.mu.Lock()
	delete(p.remotes, tr.SSRC())
	p.mu.Unlock()
	p.streamChange()
}

func (p *Peer) streamChange() {
	if fn := p.OnStreamChange; fn != nil {
		fn(p.RemoteTracks())
	}
}

func (p *Peer) onICECandidate(callback func(candidate string)) {
	p.conn.OnICECandidate(func(ice *webrtc.ICECandidate) {
		// ICE gathering finish condition
		if ice == nil {
			p.log.Debug().Msg("ICE gathering was complete probably")
			return
		}
		candidate := ice.ToJSON()
		p.log.Debug().Str("candidate", candidate.Candidate).Msg("ICE")
		data, err := Encode(&candidate)
		if err != nil {
			p.log.Error().Err(err).Msg("ICE candidate encode fail")
			return
		}
		callback(data)
	})
}

func (p *Peer) handleICEState(state webrtc.ICEConnectionState) {
	p.log.Debug().Str(".state", state.String()).Msg("ICE")
	switch state {
	case webrtc.ICEConnectionStateChecking:
		// nothing
	case webrtc.ICEConnectionStateConnected:
		if p.OnConnect != nil {
			p.OnConnect()
		}
	case webrtc.ICEConnectionStateFailed:
		p.log.Error().Msgf("WebRTC connection fail! connection: %v, ice: %v, gathering: %v, signalling: %v",
			p.conn.ConnectionState(), p.conn.ICEConnectionState(), p.conn.ICEGatheringState(),
			p.conn.SignalingState())
		p.Disconnect()
	case webrtc.ICEConnectionStateClosed,
		webrtc.ICEConnectionStateDisconnected:
		p.Disconnect()
	default:
		p.log.Debug().Msg("ICE state is not handled!")
	}
}

// Encode encodes the input in base64.
// It is used to compress session descriptions and candidates before
// they travel through the signal mailbox.
func Encode(obj any) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Decode decodes the input from base64.
func Decode(in string, obj any) error {
	b, err := base64.StdEncoding.DecodeString(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, obj)
}
