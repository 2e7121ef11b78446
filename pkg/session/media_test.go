package session

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meetgrid/meetgrid/pkg/com"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

// writeIVF crafts a minimal IVF container: the 32-byte file header
// plus the given frames, 30 fps timebase.
func writeIVF(t *testing.T, fourcc string, frames ...[]byte) string {
	t.Helper()
	var buf bytes.Buffer
	h := make([]byte, 32)
	copy(h[0:], "DKIF")
	binary.LittleEndian.PutUint16(h[6:], 32)
	copy(h[8:], fourcc)
	binary.LittleEndian.PutUint16(h[12:], 640)
	binary.LittleEndian.PutUint16(h[14:], 480)
	binary.LittleEndian.PutUint32(h[16:], 30)
	binary.LittleEndian.PutUint32(h[20:], 1)
	binary.LittleEndian.PutUint32(h[24:], uint32(len(frames)))
	buf.Write(h)
	for i, frame := range frames {
		fh := make([]byte, 12)
		binary.LittleEndian.PutUint32(fh[0:], uint32(len(frame)))
		binary.LittleEndian.PutUint64(fh[4:], uint64(i))
		buf.Write(fh)
		buf.Write(frame)
	}
	path := filepath.Join(t.TempDir(), "media.ivf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// countingSink records delivered samples, the rest of the surface
// comes from the scripted connection.
type countingSink struct {
	fakeConn
	mu    sync.Mutex
	audio int
	video int
	lastA []byte
	lastV []byte
}

func (c *countingSink) SendAudio(data []byte, dur time.Duration) {
	c.mu.Lock()
	c.audio++
	c.lastA = data
	c.mu.Unlock()
}

func (c *countingSink) SendVideo(data []byte, dur time.Duration) {
	c.mu.Lock()
	c.video++
	c.lastV = data
	c.mu.Unlock()
}

func (c *countingSink) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio, c.video
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%v never happened", what)
}

func TestSniffIVF(t *testing.T) {
	tests := []struct {
		fourcc string
		codec  string
		bad    bool
	}{
		{fourcc: "VP80", codec: "vp8"},
		{fourcc: "VP90", codec: "vp9"},
		{fourcc: "vp80", codec: "vp8"},
		{fourcc: "AV01", bad: true},
	}
	for _, tc := range tests {
		codec, err := sniffIVF(writeIVF(t, tc.fourcc))
		if tc.bad {
			if err == nil {
				t.Errorf("%v: expected a rejection", tc.fourcc)
			}
			continue
		}
		if err != nil || codec != tc.codec {
			t.Errorf("%v: got %v, %v", tc.fourcc, codec, err)
		}
	}

	if _, err := sniffIVF(filepath.Join(t.TempDir(), "missing.ivf")); err == nil {
		t.Errorf("a missing file passed the sniff")
	}
	garbage := filepath.Join(t.TempDir(), "garbage.ivf")
	if err := os.WriteFile(garbage, []byte("not an ivf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := sniffIVF(garbage); err == nil {
		t.Errorf("garbage passed the sniff")
	}
}

func TestMediaSourceDefaults(t *testing.T) {
	m, err := NewMediaSource("", "", logger.New(false))
	if err != nil {
		t.Fatal(err)
	}
	audio, video := m.Codecs()
	if audio != "opus" || video != "vp8" {
		t.Errorf("codecs %v/%v", audio, video)
	}
	if !m.micOn() || !m.camOn() {
		t.Errorf("sources must start live")
	}
	m.SetMic(false)
	if m.micOn() {
		t.Errorf("the mic toggle was lost")
	}
}

func TestMediaSourceChecksFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := NewMediaSource(missing, "", logger.New(false)); err == nil {
		t.Errorf("a missing audio file passed")
	}
	if _, err := NewMediaSource("", missing, logger.New(false)); err == nil {
		t.Errorf("a missing video file passed")
	}
	m, err := NewMediaSource("", writeIVF(t, "VP90"), logger.New(false))
	if err != nil {
		t.Fatal(err)
	}
	if _, video := m.Codecs(); video != "vp9" {
		t.Errorf("sniffed %v", video)
	}
}

func TestMediaSilenceFlow(t *testing.T) {
	m, err := NewMediaSource("", "", logger.New(false))
	if err != nil {
		t.Fatal(err)
	}
	sink := &countingSink{}
	m.Attach(com.NewUid(), sink)
	m.Start()
	defer m.Stop()

	waitFor(t, "silence delivery", func() bool { a, _ := sink.counts(); return a >= 2 })
	sink.mu.Lock()
	silent := bytes.Equal(sink.lastA, opusSilence)
	sink.mu.Unlock()
	if !silent {
		t.Errorf("expected silence frames without an audio file")
	}
}

func TestMediaVideoFlow(t *testing.T) {
	frame := []byte{0x9d, 0x01, 0x2a, 0x80, 0x02}
	m, err := NewMediaSource("", writeIVF(t, "VP80", frame), logger.New(false))
	if err != nil {
		t.Fatal(err)
	}
	m.SetCam(false)
	id := com.NewUid()
	sink := &countingSink{}
	m.Attach(id, sink)
	m.Start()
	defer m.Stop()

	// frames keep being consumed but none leaves while the camera is off
	waitFor(t, "audio pacing", func() bool { a, _ := sink.counts(); return a >= 3 })
	if _, v := sink.counts(); v != 0 {
		t.Fatalf("%d frames escaped a muted camera", v)
	}

	m.SetCam(true)
	waitFor(t, "video delivery", func() bool { _, v := sink.counts(); return v >= 2 })
	sink.mu.Lock()
	got := append([]byte(nil), sink.lastV...)
	sink.mu.Unlock()
	if !bytes.Equal(got, frame) {
		t.Errorf("frame %x", got)
	}

	m.Detach(id)
	a1, v1 := sink.counts()
	time.Sleep(100 * time.Millisecond)
	a2, v2 := sink.counts()
	if a2-a1 > 1 || v2-v1 > 1 {
		t.Errorf("a detached sink still receives samples")
	}
}
