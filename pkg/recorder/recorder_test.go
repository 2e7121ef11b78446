package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

func TestTranscript(t *testing.T) {
	dir := t.TempDir()
	conf := config.Recording{Enabled: true, Name: "%room%", Folder: dir}
	r := NewRecording(Meta{Room: "test_room"}, logger.Default(), conf)
	r.Set(true, "test_user")

	iterations := 222
	var wg sync.WaitGroup
	wg.Add(iterations)
	for i := 0; i < iterations; i++ {
		go func(n int) {
			r.WriteEvent(Event{Kind: "chat", User: "test_user", Data: fmt.Sprintf("line %v", n)})
			wg.Done()
		}(i)
	}
	wg.Wait()
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "test_room", eventsName))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != iterations {
		t.Errorf("expected %v transcript lines, got %v", iterations, lines)
	}
	if _, err := os.Stat(filepath.Join(dir, "test_room", metaName)); err != nil {
		t.Errorf("expected a meta file, %v", err)
	}
}

func TestZip(t *testing.T) {
	dir := t.TempDir()
	conf := config.Recording{Enabled: true, Name: "%room%", Folder: dir, Zip: true}
	r := NewRecording(Meta{Room: "zip_room"}, logger.Default(), conf)
	r.Set(true, "admin")
	r.WriteEvent(Event{Kind: "join", User: "admin"})
	if err := r.Stop(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(r.ArtifactPath()); err != nil {
		t.Errorf("expected a zip artifact, %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "zip_room")); !os.IsNotExist(err) {
		t.Errorf("expected the source dir to be gone")
	}
}

func TestDirName(t *testing.T) {
	tests := []struct {
		name string
		room string
		user string
		re   string
	}{
		{name: "%date:20060102%_%room%", room: "r1", re: `^\d{8}_r1$`},
		{name: "%room%_%user%", room: "r1", user: "u1", re: `^r1_u1$`},
		{name: "%room%_%rand:5%", room: "r1", re: `^r1_[a-zA-Z]{5}$`},
		{name: "", room: "r1", re: `^\d{8}-\d{6}_r1$`},
	}

	for _, test := range tests {
		out := parseName(test.name, test.room, test.user)
		if ok, _ := regexp.MatchString(test.re, out); !ok {
			t.Errorf("%v doesn't match %v", out, test.re)
		}
	}
}

func BenchmarkTranscript(b *testing.B) {
	dir := b.TempDir()
	conf := config.Recording{Enabled: true, Name: "%rand:8%", Folder: dir}
	r := NewRecording(Meta{Room: "bench"}, logger.Default(), conf)
	r.Set(true, "bench_user")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.WriteEvent(Event{Kind: "presence", User: "bench_user", Data: "12,34"})
	}
	b.StopTimer()
	if err := r.Stop(); err != nil {
		b.Fatal(err)
	}
}
