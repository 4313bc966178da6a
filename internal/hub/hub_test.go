package hub

import "testing"

func TestBroadcastScopedByDepartment(t *testing.T) {
	h := New()
	boardA := &Client{ID: "a", Send: make(chan []byte, 1), DepartmentID: "dept-1"}
	boardB := &Client{ID: "b", Send: make(chan []byte, 1), DepartmentID: "dept-2"}
	firehose := &Client{ID: "c", Send: make(chan []byte, 1)}
	h.Register(boardA)
	h.Register(boardB)
	h.Register(firehose)

	h.Broadcast([]byte("called"), "dept-1")

	if len(boardA.Send) != 1 {
		t.Fatalf("expected dept-1 board to receive the event")
	}
	if len(boardB.Send) != 0 {
		t.Fatalf("dept-2 board must not receive dept-1 events")
	}
	if len(firehose.Send) != 1 {
		t.Fatalf("unscoped client should receive everything")
	}
}

func TestBroadcastSkipsSlowClient(t *testing.T) {
	h := New()
	slow := &Client{ID: "slow", Send: make(chan []byte, 1), DepartmentID: "dept-1"}
	h.Register(slow)
	slow.Send <- []byte("backlog")

	// Must not block even though the buffer is full.
	h.Broadcast([]byte("called"), "dept-1")

	if got := <-slow.Send; string(got) != "backlog" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestUnregisterClosesSend(t *testing.T) {
	h := New()
	client := &Client{ID: "a", Send: make(chan []byte, 1)}
	h.Register(client)
	h.Unregister(client)

	if _, open := <-client.Send; open {
		t.Fatalf("expected send channel closed after unregister")
	}

	// Broadcast after unregister must not panic on the closed channel.
	h.Broadcast([]byte("called"), "dept-1")
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","department_id":"dept-1"}`))
	if !ok || msg.DepartmentID != "dept-1" {
		t.Fatalf("unexpected parse result: %+v ok=%v", msg, ok)
	}
	if _, ok := ParseSubscribe([]byte(`{"action":"launch"}`)); ok {
		t.Fatalf("unknown action must not parse")
	}
	if _, ok := ParseSubscribe([]byte(`not json`)); ok {
		t.Fatalf("invalid json must not parse")
	}
}
