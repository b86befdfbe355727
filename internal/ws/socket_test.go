package ws

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	socketio "github.com/googollee/go-socket.io"

	"github.com/kiliankoe/royale/internal/events"
	"github.com/kiliankoe/royale/internal/game"
)

type fakeConn struct {
	socketio.Conn
	ctx     any
	emitted []string
}

func (c *fakeConn) ID() string { return "sid-1" }

func (c *fakeConn) Context() interface{} { return c.ctx }

func (c *fakeConn) SetContext(v interface{}) { c.ctx = v }

func (c *fakeConn) Emit(event string, _ ...interface{}) { c.emitted = append(c.emitted, event) }

func TestPublishBeforeMountIsNoop(t *testing.T) {
	srv := New(nil, nil, time.Second)
	err := srv.Publish(context.Background(), events.Event{Type: events.RoomCreated, RoomID: "room_1"})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestCaller(t *testing.T) {
	srv := New(nil, nil, 0)
	conn := &fakeConn{}
	if _, ok := srv.caller(conn); ok {
		t.Fatal("connection without context should not have a caller")
	}
	conn.SetContext(&ConnCtx{})
	if _, ok := srv.caller(conn); ok {
		t.Fatal("unauthenticated connection should not have a caller")
	}
	conn.SetContext(&ConnCtx{Caller: "alice"})
	if c, ok := srv.caller(conn); !ok || c != "alice" {
		t.Fatalf("expected alice, got %q", c)
	}
}

func TestGameErrAck(t *testing.T) {
	srv := New(nil, nil, 0)
	conn := &fakeConn{}

	ack := srv.gameErr(conn, fmt.Errorf("%w: room_3", game.ErrFull))
	if ack["error"] != "full" || ack["message"] != "room is full: room_3" {
		t.Fatalf("unexpected ack %v", ack)
	}
	ack = srv.gameErr(conn, errors.New("db down"))
	if ack["error"] != "internal" || ack["message"] != "internal error" {
		t.Fatalf("internal errors should be masked, got %v", ack)
	}
	if len(conn.emitted) != 2 || conn.emitted[0] != "error" {
		t.Fatalf("expected two error emits, got %v", conn.emitted)
	}
}
