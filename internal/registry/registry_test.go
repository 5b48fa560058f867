package registry

import "testing"

func TestCreateAndLookupParticipant(t *testing.T) {
	r := New()
	id := r.CreateParticipant(7)

	buf := make([]ParticipantID, 4)
	n, err := r.LookupParticipant(7, buf)
	if err != nil {
		t.Fatalf("LookupParticipant() error = %v", err)
	}
	if n != 1 || buf[0] != id {
		t.Errorf("LookupParticipant() = %v (n=%d), want [%v] (n=1)", buf[:n], n, id)
	}
}

func TestLookupParticipantUnknownDomain(t *testing.T) {
	r := New()
	r.CreateParticipant(1)

	buf := make([]ParticipantID, 4)
	_, err := r.LookupParticipant(99, buf)
	if err != ErrNotFound {
		t.Fatalf("LookupParticipant() error = %v, want ErrNotFound", err)
	}
}

func TestMultipleParticipantsPerDomain(t *testing.T) {
	r := New()
	a := r.CreateParticipant(5)
	b := r.CreateParticipant(5)
	c := r.CreateParticipant(6)

	buf := make([]ParticipantID, 4)
	n, err := r.LookupParticipant(5, buf)
	if err != nil {
		t.Fatalf("LookupParticipant() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("LookupParticipant() n = %d, want 2", n)
	}
	seen := map[ParticipantID]bool{buf[0]: true, buf[1]: true}
	if !seen[a] || !seen[b] {
		t.Errorf("LookupParticipant(5) = %v, want %v and %v", buf[:n], a, b)
	}

	n, err = r.LookupParticipant(6, buf)
	if err != nil || n != 1 || buf[0] != c {
		t.Errorf("LookupParticipant(6) = %v (n=%d, err=%v), want [%v]", buf[:n], n, err, c)
	}
}

func TestDeleteParticipantRemovesFromDomain(t *testing.T) {
	r := New()
	id := r.CreateParticipant(3)

	if err := r.DeleteParticipant(id); err != nil {
		t.Fatalf("DeleteParticipant() error = %v", err)
	}

	buf := make([]ParticipantID, 4)
	if _, err := r.LookupParticipant(3, buf); err != ErrNotFound {
		t.Errorf("LookupParticipant() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDeleteParticipantUnknownID(t *testing.T) {
	r := New()
	if err := r.DeleteParticipant(12345); err != ErrNotFound {
		t.Fatalf("DeleteParticipant() error = %v, want ErrNotFound", err)
	}
}

func TestLookupParticipantBufferSmallerThanCount(t *testing.T) {
	r := New()
	r.CreateParticipant(2)
	r.CreateParticipant(2)
	r.CreateParticipant(2)

	buf := make([]ParticipantID, 2)
	n, err := r.LookupParticipant(2, buf)
	if err != nil {
		t.Fatalf("LookupParticipant() error = %v", err)
	}
	if n != 2 {
		t.Errorf("LookupParticipant() with a short buffer copied %d, want 2", n)
	}
}
