package session

import (
	"errors"
	"sync"
	"testing"

	"classboard/pkg/types"
)

func teacher(id string) types.Participant {
	return types.Participant{UserID: id, UserName: "Teacher " + id, Role: types.RoleTeacher}
}

func student(id string) types.Participant {
	return types.Participant{UserID: id, UserName: "Student " + id, Role: types.RoleStudent}
}

func TestDirectory_JoinCreatesLockedChannel(t *testing.T) {
	d := NewDirectory()

	snap, err := d.Join("C1", teacher("t1"))
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if !snap.Locked {
		t.Error("New channel should start locked")
	}
	if snap.ParticipantCount != 1 {
		t.Errorf("Expected count 1, got %d", snap.ParticipantCount)
	}
	if snap.Document != nil {
		t.Error("New channel should have no document")
	}
}

func TestDirectory_JoinValidation(t *testing.T) {
	d := NewDirectory()

	tests := []struct {
		name      string
		channelID string
		p         types.Participant
	}{
		{"missing channel", "", student("s1")},
		{"missing user", "C1", types.Participant{Role: types.RoleStudent}},
		{"unknown role", "C1", types.Participant{UserID: "x", Role: "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Join(tt.channelID, tt.p)
			if !errors.Is(err, types.ErrInvalidJoin) {
				t.Errorf("Expected ErrInvalidJoin, got %v", err)
			}
		})
	}
	if len(d.List()) != 0 {
		t.Error("Rejected joins must not create channels")
	}
}

func TestDirectory_RejoinDoesNotDoubleCount(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", student("s1"))
	snap, _ := d.Join("C1", student("s1"))
	if snap.ParticipantCount != 1 {
		t.Errorf("Rejoin should replace, got count %d", snap.ParticipantCount)
	}
}

// FUNCTIONAL VALIDATION TEST: Count after 3 joins and 1 leave is 2
func TestDirectory_CountAfterThreeJoinsOneLeave(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))
	_, _ = d.Join("C1", student("s1"))
	_, _ = d.Join("C1", student("s2"))

	count, removed := d.Leave("C1", "s1")
	if count != 2 || removed {
		t.Errorf("Expected count 2 and channel kept, got %d removed=%v", count, removed)
	}
	snap, ok := d.Get("C1")
	if !ok || snap.ParticipantCount != 2 {
		t.Errorf("Get should report 2 participants, got %+v", snap)
	}
}

func TestDirectory_LastLeaveRemovesChannel(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))
	_, _ = d.SetLocked("C1", false)

	count, removed := d.Leave("C1", "t1")
	if count != 0 || !removed {
		t.Errorf("Expected channel removal, got count %d removed=%v", count, removed)
	}
	if _, ok := d.Get("C1"); ok {
		t.Error("Channel should be gone")
	}

	// A fresh channel starts from defaults again.
	snap, _ := d.Join("C1", student("s1"))
	if !snap.Locked {
		t.Error("Recreated channel should be locked")
	}
}

func TestDirectory_LeaveUnknown(t *testing.T) {
	d := NewDirectory()
	if count, removed := d.Leave("nope", "u"); count != 0 || removed {
		t.Errorf("Leaving unknown channel should be a no-op, got %d %v", count, removed)
	}
	_, _ = d.Join("C1", teacher("t1"))
	if count, removed := d.Leave("C1", "ghost"); count != 1 || removed {
		t.Errorf("Leaving unknown user should keep count, got %d %v", count, removed)
	}
}

// FUNCTIONAL VALIDATION TEST: Lock true -> false round trip
func TestDirectory_LockRoundTrip(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))

	before, _ := d.Get("C1")
	if _, err := d.SetLocked("C1", !before.Locked); err != nil {
		t.Fatalf("SetLocked failed: %v", err)
	}
	after, err := d.SetLocked("C1", before.Locked)
	if err != nil {
		t.Fatalf("SetLocked failed: %v", err)
	}
	if after.Locked != before.Locked {
		t.Error("Round trip should restore the lock state")
	}
}

func TestDirectory_MutationsOnMissingChannel(t *testing.T) {
	d := NewDirectory()
	if _, err := d.SetLocked("C1", false); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("Expected ErrChannelNotFound, got %v", err)
	}
}

func TestDirectory_ShareDocumentStartsHidden(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))

	snap, err := d.ShareDocument("C1", types.DocumentState{
		Blob: []byte("%PDF-1.4"), FileName: "a.pdf", SharedBy: "t1", VisibleToStudents: true,
	})
	if err != nil {
		t.Fatalf("ShareDocument failed: %v", err)
	}
	if snap.Document == nil || snap.Document.VisibleToStudents {
		t.Error("Shared document must start hidden from students")
	}
	if snap.Document.SharedAt.IsZero() {
		t.Error("SharedAt should be stamped")
	}

	if _, err := d.ShareDocument("C1", types.DocumentState{FileName: "empty.pdf"}); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Expected ErrEmptyDocument, got %v", err)
	}
}

func TestDirectory_NewUploadReplacesDocument(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))
	_, _ = d.ShareDocument("C1", types.DocumentState{Blob: []byte("one"), FileName: "one.pdf"})
	_, _ = d.SetDocumentVisibility("C1", true)

	snap, _ := d.ShareDocument("C1", types.DocumentState{Blob: []byte("two"), FileName: "two.pdf"})
	if snap.Document.FileName != "two.pdf" || snap.Document.VisibleToStudents {
		t.Errorf("New upload should replace and hide, got %+v", snap.Document)
	}
}

// FUNCTIONAL VALIDATION TEST: Visibility false -> true -> false
func TestDirectory_VisibilitySequence(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))
	_, _ = d.ShareDocument("C1", types.DocumentState{Blob: []byte("%PDF"), FileName: "a.pdf"})

	for _, v := range []bool{true, false} {
		if _, err := d.SetDocumentVisibility("C1", v); err != nil {
			t.Fatalf("SetDocumentVisibility(%v) failed: %v", v, err)
		}
	}
	snap, _ := d.Get("C1")
	if snap.Document.VisibleToStudents {
		t.Error("Final visibility should be false")
	}
}

func TestDirectory_VisibilityWithoutDocument(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))

	if _, err := d.SetDocumentVisibility("C1", true); !errors.Is(err, ErrNoDocument) {
		t.Errorf("Expected ErrNoDocument, got %v", err)
	}
}

func TestDirectory_RemoveDocumentIdempotent(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))
	_, _ = d.ShareDocument("C1", types.DocumentState{Blob: []byte("%PDF"), FileName: "a.pdf"})

	for i := 0; i < 2; i++ {
		snap, err := d.RemoveDocument("C1")
		if err != nil {
			t.Fatalf("RemoveDocument #%d failed: %v", i, err)
		}
		if snap.Document != nil {
			t.Error("Document should be cleared")
		}
	}
}

func TestDirectory_MutateFailureDoesNotCommit(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))

	wantErr := errors.New("abort")
	_, err := d.Mutate("C1", func(s *State) error {
		s.Locked = false
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Expected callback error, got %v", err)
	}
	snap, _ := d.Get("C1")
	if !snap.Locked {
		t.Error("Failed mutation must not be committed")
	}
}

func TestDirectory_SnapshotsAreCopies(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("t1"))
	_, _ = d.ShareDocument("C1", types.DocumentState{Blob: []byte("%PDF"), FileName: "a.pdf"})

	snap, _ := d.Get("C1")
	snap.Document.VisibleToStudents = true
	snap.Locked = false

	again, _ := d.Get("C1")
	if again.Document.VisibleToStudents || !again.Locked {
		t.Error("Mutating a snapshot must not affect directory state")
	}
}

func TestDirectory_ListParticipantsAndStats(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("B", teacher("t1"))
	_, _ = d.Join("A", student("s1"))
	_, _ = d.Join("A", student("s2"))
	_, _ = d.ShareDocument("B", types.DocumentState{Blob: []byte("%PDF"), FileName: "b.pdf"})

	list := d.List()
	if len(list) != 2 || list[0].ChannelID != "A" || list[1].ChannelID != "B" {
		t.Errorf("Expected channels A, B in order, got %+v", list)
	}
	if got := d.Participants("A"); len(got) != 2 || got[0].ChannelID != "A" {
		t.Errorf("Expected 2 participants stamped with channel, got %+v", got)
	}
	stats := d.Stats()
	if stats.Channels != 2 || stats.Participants != 3 || stats.Documents != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestDirectory_ConcurrentJoinLeave(t *testing.T) {
	d := NewDirectory()
	_, _ = d.Join("C1", teacher("anchor"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			_, _ = d.Join("C1", student(id+"-x"))
			_, _ = d.SetLocked("C1", i%2 == 0)
			d.Leave("C1", id+"-x")
		}(i)
	}
	wg.Wait()

	snap, ok := d.Get("C1")
	if !ok || snap.ParticipantCount != 1 {
		t.Errorf("Only the anchor should remain, got %+v", snap)
	}
}
