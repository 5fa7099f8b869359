package app

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := NewTracker()

	feed1 := tr.Issue("feed")
	detail := tr.Issue("detail")
	if !tr.Current(feed1) || !tr.Current(detail) {
		t.Fatal("fresh tickets are not current")
	}

	feed2 := tr.Issue("feed")
	if tr.Current(feed1) {
		t.Error("superseded ticket is still current")
	}
	if !tr.Current(feed2) {
		t.Error("latest ticket is not current")
	}
	if !tr.Current(detail) {
		t.Error("ticket of another scope became stale")
	}

	tr.Abandon("detail")
	if tr.Current(detail) {
		t.Error("abandoned ticket is still current")
	}
	if tr.Current(Ticket{}) {
		t.Error("zero ticket is current")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	tickets := make([]Ticket, 50)
	for i := range tickets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tickets[i] = tr.Issue("feed")
		}()
	}
	wg.Wait()

	current := 0
	for _, tk := range tickets {
		if tr.Current(tk) {
			current++
		}
	}
	if current != 1 {
		t.Errorf("%d tickets current, want 1", current)
	}
}
