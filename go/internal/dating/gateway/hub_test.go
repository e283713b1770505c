package gateway

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/GiantBeanstalk/Speeddating/go/internal/dating/auth"
)

type note struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
}

func registerClient(t *testing.T, h *Hub, buffer int, role auth.Role, rooms ...RoomKey) *Client {
	t.Helper()
	c := NewClient(auth.Identity{UserID: uuid.NewString(), Role: role}, uuid.New(), buffer)
	if err := h.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, k := range rooms {
		if err := h.Subscribe(c.ID, k); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	return c
}

func seqs(t *testing.T, c *Client) []int {
	t.Helper()
	var out []int
	for _, m := range queued(t, c) {
		out = append(out, int(m["seq"].(float64)))
	}
	return out
}

func TestHubBroadcastReachesRoomInOrder(t *testing.T) {
	h := NewHub()
	event := EventRoom(uuid.New())
	other := EventRoom(uuid.New())

	a := registerClient(t, h, 16, auth.RoleAttendee, event)
	b := registerClient(t, h, 16, auth.RoleAttendee, event)
	outsider := registerClient(t, h, 16, auth.RoleAttendee, other)

	for i := 1; i <= 5; i++ {
		h.Broadcast(event, note{Type: "announcement", Seq: i})
	}

	for _, c := range []*Client{a, b} {
		if got := seqs(t, c); fmt.Sprint(got) != "[1 2 3 4 5]" {
			t.Fatalf("client %s got %v, want [1 2 3 4 5]", c.ID, got)
		}
	}
	if got := queued(t, outsider); len(got) != 0 {
		t.Fatalf("client of another room received %d messages", len(got))
	}
}

func TestHubFanoutDeliversOncePerConnection(t *testing.T) {
	h := NewHub()
	eventID := uuid.New()
	both := registerClient(t, h, 16, auth.RoleOrganizer, EventRoom(eventID), AdminRoom(eventID))
	adminOnly := registerClient(t, h, 16, auth.RoleOrganizer, AdminRoom(eventID))

	h.Fanout(note{Type: "round_started", Seq: 1}, EventRoom(eventID), AdminRoom(eventID), EventRoom(eventID))

	if got := seqs(t, both); len(got) != 1 {
		t.Fatalf("member of both rooms got %d copies, want 1", len(got))
	}
	if got := seqs(t, adminOnly); len(got) != 1 {
		t.Fatalf("admin member got %d copies, want 1", len(got))
	}
}

func TestHubEvictsSlowConnection(t *testing.T) {
	h := NewHub()
	room := RoundRoom(uuid.New())
	slow := registerClient(t, h, 1, auth.RoleAttendee, room)
	fast := registerClient(t, h, 16, auth.RoleAttendee, room, EventRoom(uuid.New()))

	h.Broadcast(room, note{Type: "timer_update", Seq: 1})
	h.Broadcast(room, note{Type: "timer_update", Seq: 2})
	h.Broadcast(room, note{Type: "timer_update", Seq: 3})

	if !slow.Closed() {
		t.Fatal("slow connection should have been dropped")
	}
	if got := seqs(t, slow); fmt.Sprint(got) != "[1]" {
		t.Fatalf("slow connection drained %v, want [1]", got)
	}
	if got := seqs(t, fast); fmt.Sprint(got) != "[1 2 3]" {
		t.Fatalf("healthy connection got %v, want [1 2 3]", got)
	}
	if n := h.RoomSize(room); n != 1 {
		t.Fatalf("room size = %d, want 1", n)
	}
	if err := h.Subscribe(slow.ID, room); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("Subscribe after eviction = %v, want ErrUnknownConnection", err)
	}
}

func TestHubUnsubscribeAndDrop(t *testing.T) {
	h := NewHub()
	room := EventRoom(uuid.New())
	c := registerClient(t, h, 16, auth.RoleAttendee, room)

	if err := h.Register(c); !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("second Register = %v, want ErrDuplicateConnection", err)
	}
	if err := h.Unsubscribe(c.ID, room); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	h.Broadcast(room, note{Type: "announcement", Seq: 1})
	if got := queued(t, c); len(got) != 0 {
		t.Fatalf("unsubscribed client received %v", kinds(got))
	}
	if stats := h.Stats(); stats.EventRooms != 0 {
		t.Fatalf("empty room kept: %+v", stats)
	}

	h.DropConnection(c.ID)
	h.DropConnection(c.ID)
	if _, ok := <-c.Send(); ok {
		t.Fatal("send queue should be closed after drop")
	}
	if err := h.SendTo(c.ID, note{}); !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("SendTo dropped connection = %v, want ErrUnknownConnection", err)
	}
}

func TestHubStats(t *testing.T) {
	h := NewHub()
	eventID := uuid.New()
	roundID := uuid.New()

	organizer := registerClient(t, h, 4, auth.RoleOrganizer, AdminRoom(eventID), EventRoom(eventID))
	registerClient(t, h, 4, auth.RoleAttendee, EventRoom(eventID))
	registerClient(t, h, 4, auth.RoleAttendee, RoundRoom(roundID))

	// A second tab of the same organizer.
	again := NewClient(organizer.Identity, eventID, 4)
	if err := h.Register(again); err != nil {
		t.Fatalf("Register: %v", err)
	}

	want := ConnectionStats{
		TotalConnections:     4,
		UniqueUsers:          3,
		EventRooms:           1,
		RoundRooms:           1,
		AdminRooms:           1,
		OrganizerConnections: 2,
	}
	if got := h.Stats(); got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}
}

func TestHubConcurrentUse(t *testing.T) {
	h := NewHub()
	room := EventRoom(uuid.New())
	listener := registerClient(t, h, 1024, auth.RoleAttendee, room)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Broadcast(room, note{Type: "timer_update", Seq: i*100 + j})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				c := NewClient(auth.Identity{UserID: "churn"}, uuid.New(), 1)
				if err := h.Register(c); err != nil {
					t.Error(err)
					return
				}
				_ = h.Subscribe(c.ID, room)
				h.DropConnection(c.ID)
			}
		}()
	}
	wg.Wait()

	if got := len(queued(t, listener)); got != 400 {
		t.Fatalf("listener received %d messages, want 400", got)
	}
	if stats := h.Stats(); stats.TotalConnections != 1 {
		t.Fatalf("churned connections left behind: %+v", stats)
	}
}
