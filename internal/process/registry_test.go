package process

import (
	"errors"
	"sync"
	"testing"

	"github.com/brianly1003/gitdeck/internal/domain"
)

func TestRegistry_MonotonicIDs(t *testing.T) {
	r := NewRegistry()

	id1, _ := r.Create(&Handle{Command: "a"})
	id2, _ := r.Create(&Handle{Command: "b"})
	r.Remove(id2)
	id3, _ := r.Create(&Handle{Command: "c"})

	if !(id1 < id2 && id2 < id3) {
		t.Errorf("ids not monotonic: %d, %d, %d", id1, id2, id3)
	}
}

func TestRegistry_GetRemove(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create(&Handle{Command: "echo"})

	h, ok := r.Get(id)
	if !ok || h.Command != "echo" {
		t.Fatalf("Get(%d) = %+v, %v", id, h, ok)
	}

	r.Remove(id)
	r.Remove(id) // idempotent

	if _, ok := r.Get(id); ok {
		t.Error("handle still present after Remove")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := NewRegistry()
	id, _ := r.Create(&Handle{})

	r.Remove(9999)

	if r.Len() != 1 {
		t.Errorf("removing an unknown id changed the registry: Len() = %d", r.Len())
	}
	if _, ok := r.Get(id); !ok {
		t.Error("existing handle lost")
	}
}

func TestRegistry_SessionIndex(t *testing.T) {
	r := NewRegistry()

	id, err := r.Create(&Handle{SessionID: "s1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(&Handle{SessionID: "s1"}); !errors.Is(err, domain.ErrSessionExists) {
		t.Errorf("duplicate session error = %v, want ErrSessionExists", err)
	}

	h, ok := r.GetBySession("s1")
	if !ok || h.ID != id {
		t.Fatalf("GetBySession() = %+v, %v", h, ok)
	}

	r.Remove(id)
	if _, ok := r.GetBySession("s1"); ok {
		t.Error("session index not cleared on Remove")
	}
	if _, err := r.Create(&Handle{SessionID: "s1"}); err != nil {
		t.Errorf("session id should be reusable after removal: %v", err)
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		_, _ = r.Create(&Handle{})
	}

	list := r.List()
	if len(list) != 5 {
		t.Fatalf("List() len = %d, want 5", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Errorf("List() not ordered by id: %d before %d", list[i-1].ID, list[i].ID)
		}
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	ids := make(chan int, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := r.Create(&Handle{})
			ids <- id
			_ = r.List()
			r.Remove(id)
			r.Remove(id)
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d issued twice", id)
		}
		seen[id] = true
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}
