package office

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meetgrid/meetgrid/pkg/config"
	"github.com/meetgrid/meetgrid/pkg/logger"
)

func writeTemplate(t *testing.T, dir string, name string, data string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLibraryScan(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "lobby.json", `{"name":"lobby","width":16,"height":12,"spawn":{"x":2,"y":2}}`)
	writeTemplate(t, dir, "unnamed.json", `{"width":4,"height":4}`)
	writeTemplate(t, dir, "broken.json", `{"width":`)
	writeTemplate(t, dir, "notes.txt", `not a template`)
	writeTemplate(t, dir, "secret.json", `{"name":"secret"}`)

	lib := NewLibrary(config.Library{BasePath: dir, Ignored: []string{"secret"}}, logger.New(false))
	lib.Scan()

	names := lib.Names()
	want := []string{"lobby", "unnamed"}
	if len(names) != len(want) {
		t.Fatalf("unexpected names %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected names %v, want %v", names, want)
		}
	}

	lobby := lib.FindByName("lobby")
	if lobby.W != 16 || lobby.H != 12 || lobby.Spawn.X != 2 || lobby.Spawn.Y != 2 {
		t.Errorf("unexpected meta %+v", lobby)
	}
	if lobby.Path != "lobby.json" {
		t.Errorf("expected a relative template path, got %v", lobby.Path)
	}
	if got := lib.FindByName("nope"); got.Name != "" {
		t.Errorf("expected a zero value for an unknown space, got %+v", got)
	}
}

func TestLibraryRescan(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "one.json", `{"name":"one"}`)

	lib := NewLibrary(config.Library{BasePath: dir}, logger.New(false))
	lib.Scan()
	if n := len(lib.GetAll()); n != 1 {
		t.Fatalf("expected one space, got %v", n)
	}

	writeTemplate(t, dir, "two.json", `{"name":"two"}`)
	lib.Scan()
	if n := len(lib.GetAll()); n != 2 {
		t.Errorf("expected two spaces after a rescan, got %v", n)
	}
}

func TestLibraryMissingDir(t *testing.T) {
	lib := NewLibrary(config.Library{BasePath: filepath.Join(t.TempDir(), "nope")}, logger.New(false))
	lib.Scan()
	if n := len(lib.GetAll()); n != 0 {
		t.Errorf("expected an empty library, got %v entries", n)
	}
}
