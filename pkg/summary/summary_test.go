package summary

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func minutes() Minutes {
	return Minutes{
		Meeting:   "Weekly sync",
		Attendees: []string{"ann", "bob"},
		Lines: []Line{
			{Author: "ann", Text: "morning everyone"},
			{Author: "bob", Text: "the budget needs review"},
			{Author: "ann", Text: "budget review is due friday"},
			{Author: "bob", Text: "lets finalize the budget today"},
			{Author: "ann", Text: "bye"},
		},
	}
}

func TestExtractive(t *testing.T) {
	out, err := Extractive{MaxLines: 2}.Summarize(context.Background(), minutes())
	if err != nil {
		t.Fatal(err)
	}
	expected := "Weekly sync, 2 attendees\n" +
		"- bob: the budget needs review\n" +
		"- ann: budget review is due friday"
	if out != expected {
		t.Errorf("unexpected digest:\n%v\nwant:\n%v", out, expected)
	}
}

func TestExtractiveEmpty(t *testing.T) {
	_, err := Extractive{}.Summarize(context.Background(), Minutes{Meeting: "x"})
	if err == nil {
		t.Errorf("expected an error for an empty transcript")
	}
}

func TestHttpSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %v", r.Method)
		}
		var m Minutes
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &m); err != nil {
			t.Errorf("bad minutes payload: %v", err)
		}
		if m.Meeting != "Weekly sync" {
			t.Errorf("unexpected meeting name %v", m.Meeting)
		}
		_, _ = w.Write([]byte(`{"summary":"a short recap"}`))
	}))
	defer srv.Close()

	p, err := NewHttpProvider(srv.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	out, err := p.Summarize(context.Background(), minutes())
	if err != nil {
		t.Fatal(err)
	}
	if out != "a short recap" {
		t.Errorf("unexpected summary: %v", out)
	}
}

func TestHttpSummaryFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := NewHttpProvider(srv.URL, time.Second)
	if _, err := p.Summarize(context.Background(), minutes()); err == nil {
		t.Errorf("expected an error on 500")
	}
}

type failing struct{}

func (failing) Summarize(context.Context, Minutes) (string, error) {
	return "", errors.New("down")
}

func TestFallback(t *testing.T) {
	p := Fallback{Primary: failing{}, Backup: Extractive{}}
	out, err := p.Summarize(context.Background(), minutes())
	if err != nil {
		t.Fatal(err)
	}
	if out == "" {
		t.Errorf("expected a fallback digest")
	}
}
