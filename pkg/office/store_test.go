package office

import (
	"testing"

	"github.com/meetgrid/meetgrid/pkg/api"
	"github.com/meetgrid/meetgrid/pkg/com"
)

func TestMeetingReadsAreDetached(t *testing.T) {
	s := NewStore()
	uid := com.NewUid()
	s.AddMeeting(&api.Meeting{Id: "m1", Active: true, Attendees: []com.Uid{uid}})

	m := s.Meeting("m1")
	m.Active = false
	m.Attendees = append(m.Attendees, com.NewUid())

	fresh := s.Meeting("m1")
	if !fresh.Active || len(fresh.Attendees) != 1 {
		t.Errorf("a reader mutated the stored record: %+v", fresh)
	}
	if s.Meeting("nope") != nil {
		t.Errorf("expected nil for an unknown meeting")
	}
}

func TestMeetingsOrder(t *testing.T) {
	s := NewStore()
	s.AddMeeting(&api.Meeting{Id: "b", CreatedAt: 10})
	s.AddMeeting(&api.Meeting{Id: "c", CreatedAt: 20})
	s.AddMeeting(&api.Meeting{Id: "a", CreatedAt: 10})

	list := s.Meetings()
	got := make([]string, len(list))
	for i, m := range list {
		got[i] = m.Id
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", got, want)
		}
	}
}

func TestUpdateMeeting(t *testing.T) {
	s := NewStore()
	s.AddMeeting(&api.Meeting{Id: "m1"})
	if err := s.UpdateMeeting("m1", func(m *api.Meeting) { m.Title = "sync" }); err != nil {
		t.Fatal(err)
	}
	if s.Meeting("m1").Title != "sync" {
		t.Errorf("the update was lost")
	}
	if err := s.UpdateMeeting("nope", func(*api.Meeting) {}); err != api.ErrNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestAddAttendeeOnce(t *testing.T) {
	s := NewStore()
	s.AddMeeting(&api.Meeting{Id: "m1"})
	uid := com.NewUid()
	s.AddAttendee("m1", uid)
	s.AddAttendee("m1", uid)
	if n := len(s.Meeting("m1").Attendees); n != 1 {
		t.Errorf("expected a single attendee record, got %v", n)
	}
}

func TestEnsureUser(t *testing.T) {
	s := NewStore()
	uid := com.NewUid()
	s.EnsureUser(uid, "ann")
	_ = s.Update(uid, func(u *api.User) { u.PendingSpace = []com.Uid{com.NewUid()} })
	s.EnsureUser(uid, "ann o.")

	u := s.User(uid)
	if u.Name != "ann o." {
		t.Errorf("the rename was lost: %+v", u)
	}
	if len(u.PendingSpace) != 1 {
		t.Errorf("ensure wiped the dashboard: %+v", u)
	}
	if err := s.Update(com.NewUid(), func(*api.User) {}); err != api.ErrNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSpaces(t *testing.T) {
	s := NewStore()
	id := com.NewUid()
	s.AddSpace(&api.Space{Id: id, Name: "lobby", W: 16, H: 12})
	if sp := s.Space(id); sp == nil || sp.W != 16 {
		t.Fatalf("unexpected space %+v", sp)
	}
	s.DeleteSpace(id)
	if s.Space(id) != nil {
		t.Errorf("the space record survived the delete")
	}
}
