package session

import (
	"sort"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

type sigRec struct {
	kind string
	to   com.Uid
	data string
}

type fakeWire struct {
	signals []sigRec
	leaves  int
}

func (w *fakeWire) Signal(kind string, to com.Uid, data string) error {
	w.signals = append(w.signals, sigRec{kind, to, data})
	return nil
}

func (w *fakeWire) Leave() error { w.leaves++; return nil }

// bench runs one session against scripted connections.
type bench struct {
	s     *RoomSession
	wire  *fakeWire
	conns []*fakeConn
}

func newBench(id com.Uid, strategy Strategy) *bench {
	b := &bench{wire: &fakeWire{}}
	maker := func() (Connection, error) {
		c := &fakeConn{}
		b.conns = append(b.conns, c)
		return c, nil
	}
	b.s = NewRoomSession(id, b.wire, nil, maker, strategy, logger.New(false))
	return b
}

func (b *bench) push(t api.PT, pl any) {
	data, _ := json.Marshal(pl)
	b.s.HandleEvent(com.In{T: uint8(t), Payload: data})
}

// settle waits until the loop ran everything queued so far.
func (b *bench) settle() { b.s.sync(func() {}) }

func (b *bench) sent(kind string) (out []sigRec) {
	for _, s := range b.wire.signals {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func sortedUids(n int) []com.Uid {
	ids := make([]com.Uid, n)
	for i := range ids {
		ids[i] = com.NewUid()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func offerFrom(from, to com.Uid) api.Signal {
	return api.Signal{Id: com.NewUid(), Kind: api.SigOffer, From: from, To: to, Data: "their-sdp"}
}

func TestSessionOffersByIdOrder(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{
		{Id: lo, Name: "me"},
		{Id: hi, Name: "peer"},
	}})
	b.settle()

	if len(b.conns) != 1 || b.conns[0].offers != 1 {
		t.Fatalf("conns %d", len(b.conns))
	}
	offers := b.sent(api.SigOffer)
	if len(offers) != 1 || offers[0].to != hi || offers[0].data != "offer-sdp" {
		t.Errorf("published offers %+v", offers)
	}
	cands := b.sent(api.SigCandidate)
	if len(cands) != 1 || cands[0].to != hi {
		t.Errorf("trickled candidates %+v", cands)
	}

	var st LinkState
	b.s.sync(func() { st = b.s.links[hi].State() })
	if st != LinkOfferSent {
		t.Errorf("state %v", st)
	}
}

func TestSessionAnswersAsHigherId(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(hi, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: lo, Name: "peer"}}})
	b.settle()

	// the higher id prepares the link and waits
	if len(b.conns) != 1 || b.conns[0].offers != 0 {
		t.Fatalf("conns %d, offers %d", len(b.conns), b.conns[0].offers)
	}
	if len(b.wire.signals) != 0 {
		t.Fatalf("published too early: %+v", b.wire.signals)
	}

	b.push(api.SignalOffer, offerFrom(lo, hi))
	b.settle()
	if b.conns[0].answers != 1 || len(b.conns) != 1 {
		t.Errorf("answers %d, conns %d", b.conns[0].answers, len(b.conns))
	}
	answers := b.sent(api.SigAnswer)
	if len(answers) != 1 || answers[0].to != lo || answers[0].data != "answer-sdp" {
		t.Errorf("published answers %+v", answers)
	}
}

func TestSessionProbeOnStart(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, nil)
	notices := make(chan string, 4)
	b.s.OnNotice = func(text string) { notices <- text }
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: hi}}})
	b.settle()

	// one probe connection, one real link
	if len(b.conns) != 2 || b.conns[0].disconnects != 1 || b.conns[1].offers != 1 {
		t.Fatalf("probe went wrong: %d conns", len(b.conns))
	}
	if len(notices) != 1 || <-notices != NoticeMesh {
		t.Errorf("expected the mesh notice")
	}
}

func TestSessionDuplicateJoin(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: hi, Name: "peer", JoinedAt: 42}}})
	b.push(api.UserJoined, api.Participant{Id: hi, Name: "peer"})
	b.push(api.UserJoined, api.Participant{Id: hi, Name: "peer"})
	b.push(api.Presence, api.Participant{Id: hi, Name: "peer", Pos: api.Pos{X: 7}})
	b.settle()

	if len(b.conns) != 1 || b.conns[0].offers != 1 || len(b.sent(api.SigOffer)) != 1 {
		t.Errorf("a known participant renegotiated")
	}
	var p api.Participant
	b.s.sync(func() { p = b.s.roster[hi] })
	if p.Pos.X != 7 || p.JoinedAt != 42 {
		t.Errorf("presence lost the join time: %+v", p)
	}
}

func TestSessionEarlyOffer(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1"})
	// the offer outruns the join event
	b.push(api.SignalOffer, offerFrom(hi, lo))
	b.push(api.UserJoined, api.Participant{Id: hi, Name: "peer"})
	b.settle()

	if len(b.conns) != 1 {
		t.Fatalf("conns %d", len(b.conns))
	}
	if b.conns[0].answers != 1 || b.conns[0].offers != 0 || len(b.sent(api.SigOffer)) != 0 {
		t.Errorf("the pair crossed offers: %+v", b.wire.signals)
	}
}

func TestSessionEarlyCandidates(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(hi, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1"})
	b.push(api.SignalCandidate, api.Signal{Id: com.NewUid(), Kind: api.SigCandidate, From: lo, To: hi, Data: "ec1"})
	b.push(api.SignalCandidate, api.Signal{Id: com.NewUid(), Kind: api.SigCandidate, From: lo, To: hi, Data: "ec2"})
	b.settle()
	if len(b.conns) != 0 {
		t.Fatalf("a candidate alone must not build a link")
	}

	b.push(api.SignalOffer, offerFrom(lo, hi))
	b.push(api.SignalCandidate, api.Signal{Id: com.NewUid(), Kind: api.SigCandidate, From: lo, To: hi, Data: "c3"})
	b.settle()

	conn := b.conns[0]
	if len(conn.cands) != 3 || conn.cands[0] != "ec1" || conn.cands[1] != "ec2" || conn.cands[2] != "c3" {
		t.Errorf("candidates %v", conn.cands)
	}
}

func TestSessionAnswerOnce(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: hi}}})

	sig := api.Signal{Id: com.NewUid(), Kind: api.SigAnswer, From: hi, To: lo, Data: "a"}
	b.push(api.SignalAnswer, sig)
	// the same record replayed by a snapshot
	b.push(api.SignalAnswer, sig)
	// a rogue second answer under a fresh record id
	b.push(api.SignalAnswer, api.Signal{Id: com.NewUid(), Kind: api.SigAnswer, From: hi, To: lo, Data: "b"})
	// an answer addressed to someone else
	b.push(api.SignalAnswer, api.Signal{Id: com.NewUid(), Kind: api.SigAnswer, From: hi, To: hi, Data: "c"})
	b.settle()

	if b.conns[0].setAnswers != 1 {
		t.Errorf("answer applied %d times", b.conns[0].setAnswers)
	}
}

func TestSessionLeftClosesOneLink(t *testing.T) {
	ids := sortedUids(3)
	local, r1, r2 := ids[0], ids[1], ids[2]
	b := newBench(local, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: r1}, {Id: r2}}})
	b.settle()
	if len(b.conns) != 2 {
		t.Fatalf("conns %d", len(b.conns))
	}

	b.push(api.UserLeft, api.Participant{Id: r1})
	b.settle()

	if b.conns[0].disconnects != 1 || b.conns[1].disconnects != 0 {
		t.Errorf("disconnects %d/%d", b.conns[0].disconnects, b.conns[1].disconnects)
	}
	var n int
	var kept bool
	b.s.sync(func() { n = len(b.s.links); _, kept = b.s.links[r2] })
	if n != 1 || !kept {
		t.Errorf("links %d, r2 kept %v", n, kept)
	}
}

func TestSessionLinkConnects(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: hi}}})
	b.settle()

	b.conns[0].onConnect()
	b.settle()

	var st LinkState
	b.s.sync(func() { st = b.s.links[hi].State() })
	if st != LinkConnected {
		t.Errorf("state %v", st)
	}
}

func TestSessionDropRenegotiates(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(hi, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: lo}}})
	b.push(api.SignalOffer, offerFrom(lo, hi))
	b.settle()

	// the transport died underneath
	b.conns[0].onClose()
	b.settle()
	if b.conns[0].disconnects != 1 {
		t.Errorf("the dead pair was not torn down")
	}
	var n int
	b.s.sync(func() { n = len(b.s.links) })
	if n != 0 {
		t.Fatalf("links %d", n)
	}

	// a fresh inbound offer negotiates a new pair
	b.push(api.SignalOffer, offerFrom(lo, hi))
	b.settle()
	if len(b.conns) != 2 || b.conns[1].answers != 1 {
		t.Errorf("renegotiation failed: %d conns", len(b.conns))
	}
}

func TestSessionMeetingEnd(t *testing.T) {
	ids := sortedUids(3)
	b := newBench(ids[0], Mesh{})
	closed := make(chan string, 1)
	b.s.OnClosed = func(reason string) { closed <- reason }
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: ids[1]}, {Id: ids[2]}}})
	b.settle()

	b.push(api.MeetingEnded, api.CloseNotice{Rid: "r1", Reason: "the host ended it"})

	select {
	case reason := <-closed:
		if reason != "the host ended it" {
			t.Errorf("reason %q", reason)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("the session never closed")
	}
	select {
	case <-b.s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("done never closed")
	}
	for i, c := range b.conns {
		if c.disconnects != 1 {
			t.Errorf("conn %d disconnects %d", i, c.disconnects)
		}
	}
}

func TestSessionLeave(t *testing.T) {
	lo, hi := orderedUids()
	b := newBench(lo, Mesh{})
	b.s.Start(api.RoomState{Rid: "r1", Users: []api.Participant{{Id: hi}}})
	b.s.Leave()

	select {
	case <-b.s.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("done never closed")
	}
	if b.wire.leaves != 1 {
		t.Errorf("the office was not told, leaves %d", b.wire.leaves)
	}
}

func TestSessionCallbacks(t *testing.T) {
	lo, _ := orderedUids()
	b := newBench(lo, Mesh{})
	notices := make(chan string, 4)
	chats := make(chan api.ChatMessage, 4)
	recs := make(chan api.Recording, 4)
	b.s.OnNotice = func(text string) { notices <- text }
	b.s.OnChat = func(msg api.ChatMessage) { chats <- msg }
	b.s.OnRecord = func(rec api.Recording) { recs <- rec }

	// joining a meeting that is already being recorded
	b.s.Start(api.RoomState{Rid: "r1", Recording: true})
	b.push(api.Chat, api.ChatMessage{Author: "ann", Text: "hi"})
	b.push(api.RecordMeet, api.Recording{Active: false, User: "ann"})
	b.settle()

	if len(notices) != 1 || <-notices != NoticeMesh {
		t.Errorf("expected the strategy notice")
	}
	if msg := <-chats; msg.Author != "ann" || msg.Text != "hi" {
		t.Errorf("chat %+v", msg)
	}
	if rec := <-recs; !rec.Active {
		t.Errorf("the initial recording state was not surfaced")
	}
	if rec := <-recs; rec.Active || rec.User != "ann" {
		t.Errorf("the stop event was not surfaced: %+v", rec)
	}
}
