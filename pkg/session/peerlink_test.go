package session

import (
	"errors"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
	"github.com/meetgrid/meetgrid/pkg/webrtc"
)

// fakeConn scripts the Connection surface, counters over behavior.
type fakeConn struct {
	offers      int
	answers     int
	setAnswers  int
	cands       []string
	disconnects int

	failOffer bool

	onConnect func()
	onClose   func()
}

func (f *fakeConn) Offer(trickle bool, candidates func(string)) (string, error) {
	if f.failOffer {
		return "", errors.New("no offer today")
	}
	f.offers++
	if trickle && candidates != nil {
		candidates("trickled")
	}
	return "offer-sdp", nil
}

func (f *fakeConn) Answer(data string, trickle bool, candidates func(string)) (string, error) {
	f.answers++
	return "answer-sdp", nil
}

func (f *fakeConn) SetAnswer(data string) error { f.setAnswers++; return nil }

func (f *fakeConn) AddCandidate(data string) error {
	f.cands = append(f.cands, data)
	return nil
}

func (f *fakeConn) OnConnect(fn func()) { f.onConnect = fn }
func (f *fakeConn) OnClose(fn func())   { f.onClose = fn }

func (f *fakeConn) OnStreamChange(func([]webrtc.RemoteTrack))      {}
func (f *fakeConn) OnPacket(func(webrtc.RemoteTrack, *rtp.Packet)) {}

func (f *fakeConn) SendAudio(data []byte, dur time.Duration) {}
func (f *fakeConn) SendVideo(data []byte, dur time.Duration) {}

func (f *fakeConn) RemoteTracks() []webrtc.RemoteTrack { return nil }
func (f *fakeConn) Disconnect()                        { f.disconnects++ }

func testLink(conn Connection) *PeerLink {
	return newLink(com.NewUid(), conn, logger.New(false))
}

func TestLinkOfferOnce(t *testing.T) {
	conn := &fakeConn{}
	link := testLink(conn)

	var sent []string
	offer := func(data string) error { sent = append(sent, data); return nil }

	if err := link.SendOffer(true, offer, func(string) {}); err != nil {
		t.Fatal(err)
	}
	if link.State() != LinkOfferSent {
		t.Errorf("state %v", link.State())
	}
	// a repeated call must not renegotiate
	if err := link.SendOffer(true, offer, func(string) {}); err != nil {
		t.Fatal(err)
	}
	if conn.offers != 1 || len(sent) != 1 || sent[0] != "offer-sdp" {
		t.Errorf("offers %d, sent %v", conn.offers, sent)
	}
}

func TestLinkOfferFailureKeepsState(t *testing.T) {
	conn := &fakeConn{failOffer: true}
	link := testLink(conn)
	err := link.SendOffer(false, func(string) error { return nil }, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if link.State() != LinkCreated {
		t.Errorf("state %v", link.State())
	}
}

func TestLinkAnswerAppliedOnce(t *testing.T) {
	conn := &fakeConn{}
	link := testLink(conn)

	// an answer without a sent offer has nothing to apply to
	if err := link.ApplyAnswer("early"); err != nil {
		t.Fatal(err)
	}
	if conn.setAnswers != 0 {
		t.Errorf("applied before the offer")
	}

	if err := link.SendOffer(true, func(string) error { return nil }, func(string) {}); err != nil {
		t.Fatal(err)
	}
	if err := link.ApplyAnswer("a1"); err != nil {
		t.Fatal(err)
	}
	if err := link.ApplyAnswer("a2"); err != nil {
		t.Fatal(err)
	}
	if conn.setAnswers != 1 {
		t.Errorf("answer applied %d times", conn.setAnswers)
	}
}

func TestLinkCandidateBuffering(t *testing.T) {
	conn := &fakeConn{}
	link := testLink(conn)
	if err := link.SendOffer(true, func(string) error { return nil }, func(string) {}); err != nil {
		t.Fatal(err)
	}

	link.AddCandidate("c1")
	link.AddCandidate("c2")
	if len(conn.cands) != 0 {
		t.Fatalf("candidates passed through before the remote description: %v", conn.cands)
	}

	if err := link.ApplyAnswer("a"); err != nil {
		t.Fatal(err)
	}
	if len(conn.cands) != 2 || conn.cands[0] != "c1" || conn.cands[1] != "c2" {
		t.Errorf("flush order %v", conn.cands)
	}

	link.AddCandidate("c3")
	if len(conn.cands) != 3 || conn.cands[2] != "c3" {
		t.Errorf("direct candidate missed: %v", conn.cands)
	}
}

func TestLinkAcceptOffer(t *testing.T) {
	conn := &fakeConn{}
	link := testLink(conn)

	link.AddCandidate("early")
	var sent []string
	err := link.AcceptOffer("their-sdp", false,
		func(data string) error { sent = append(sent, data); return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if conn.answers != 1 || len(sent) != 1 || sent[0] != "answer-sdp" {
		t.Errorf("answers %d, sent %v", conn.answers, sent)
	}
	if len(conn.cands) != 1 || conn.cands[0] != "early" {
		t.Errorf("buffered candidate lost: %v", conn.cands)
	}
	// the responder reaches connected through the transport only
	if link.State() != LinkCreated {
		t.Errorf("state %v", link.State())
	}
	link.setConnected()
	if link.State() != LinkConnected {
		t.Errorf("state %v", link.State())
	}
}

func TestLinkCloseIsTerminal(t *testing.T) {
	conn := &fakeConn{}
	link := testLink(conn)
	link.Close()
	link.Close()
	if conn.disconnects != 1 {
		t.Errorf("disconnects %d", conn.disconnects)
	}
	if err := link.SendOffer(true, func(string) error { return nil }, nil); err != nil {
		t.Fatal(err)
	}
	if err := link.AcceptOffer("x", false, func(string) error { return nil }, nil); err != nil {
		t.Fatal(err)
	}
	link.AddCandidate("c")
	link.setConnected()
	if conn.offers != 0 || conn.answers != 0 || len(conn.cands) != 0 {
		t.Errorf("a closed link still negotiates: %+v", conn)
	}
	if link.State() != LinkClosed {
		t.Errorf("state %v", link.State())
	}
}
