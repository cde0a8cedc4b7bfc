package yeelight_test

import (
	"bufio"
	"context"
	"net"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/juju/errors"

	"github.com/alparslanahmed/yeelight"
	"github.com/alparslanahmed/yeelight/internal/fakedevice"
)

// pipeSession returns a session over net.Pipe and runs peer against the
// other end. The test waits for peer to return before it finishes.
func pipeSession(c *qt.C, peer func(r *bufio.Reader, conn net.Conn), options ...yeelight.SessionOption) *yeelight.Session {
	client, server := net.Pipe()
	s := yeelight.NewSession(client, options...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		peer(bufio.NewReader(server), server)
	}()
	c.Cleanup(func() {
		_ = s.Close()
		_ = server.Close()
		<-done
	})
	return s
}

func readRequest(r *bufio.Reader) yeelight.Envelope {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return yeelight.Envelope{}
	}
	env, _ := yeelight.DecodeEnvelope(line)
	return env
}

func TestExecuteSkipsUntilMatchingReply(t *testing.T) {
	c := qt.New(t)

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		readRequest(r)
		_, _ = conn.Write([]byte(
			fakedevice.NotificationLine(map[string]string{"power": "on"}) + "\r\n" +
				fakedevice.ReplyLine(99, "stale") + "\r\n" +
				fakedevice.ReplyLine(0, "ok") + "\r\n" +
				fakedevice.ReplyLine(1, "second") + "\r\n"))
		readRequest(r)
	})

	reply, err := s.Send(context.Background(), "toggle")
	c.Assert(err, qt.IsNil)
	c.Assert(reply.ID, qt.Equals, uint64(0))
	c.Assert(reply.Result, qt.DeepEquals, []string{"ok"})
	c.Assert(s.Skipped(), qt.Equals, uint64(2))

	// The fourth line was not consumed by the first call.
	reply, err = s.Send(context.Background(), "toggle")
	c.Assert(err, qt.IsNil)
	c.Assert(reply.Result, qt.DeepEquals, []string{"second"})
	c.Assert(s.Skipped(), qt.Equals, uint64(2))
	c.Assert(s.NextID(), qt.Equals, uint64(2))
}

func TestExecuteWritesAssignedIDs(t *testing.T) {
	c := qt.New(t)

	got := make(chan yeelight.Envelope, 3)
	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		for i := 0; i < 3; i++ {
			req := readRequest(r)
			got <- req
			_, _ = conn.Write([]byte(fakedevice.ReplyLine(req.ID, "ok") + "\r\n"))
		}
	})

	b, err := yeelight.NewBrightness(50)
	c.Assert(err, qt.IsNil)
	for i := 0; i < 3; i++ {
		reply, err := s.Execute(context.Background(), yeelight.SetBright(yeelight.Main, b, yeelight.Smooth, 500))
		c.Assert(err, qt.IsNil)
		c.Assert(reply.OK(), qt.IsTrue)
	}
	for i := 0; i < 3; i++ {
		req := <-got
		c.Assert(req.ID, qt.Equals, uint64(i))
		c.Assert(req.Method, qt.Equals, yeelight.MethodSetBright)
		c.Assert(req.Params, qt.DeepEquals, []any{int64(50), "smooth", int64(500)})
	}
}

func TestDeviceErrorKeepsSessionUsable(t *testing.T) {
	c := qt.New(t)

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		req := readRequest(r)
		_, _ = conn.Write([]byte(
			fakedevice.ErrorLine(req.ID+5, -1, "stale") + "\r\n" +
				fakedevice.ErrorLine(req.ID, -1, "unsupported method") + "\r\n"))
		req = readRequest(r)
		_, _ = conn.Write([]byte(fakedevice.ReplyLine(req.ID, "ok") + "\r\n"))
	})

	_, err := s.Send(context.Background(), "no_such_method")
	c.Assert(err, qt.ErrorIs, yeelight.ErrRequestRejected)
	c.Assert(yeelight.IsFatal(err), qt.IsFalse)

	var devErr *yeelight.DeviceError
	c.Assert(err, qt.ErrorAs, &devErr)
	c.Assert(devErr.RequestID, qt.Equals, uint64(0))
	c.Assert(devErr.Code, qt.Equals, -1)
	c.Assert(devErr.Message, qt.Equals, "unsupported method")
	c.Assert(s.Broken(), qt.IsFalse)
	c.Assert(s.Skipped(), qt.Equals, uint64(1))

	reply, err := s.Send(context.Background(), "toggle")
	c.Assert(err, qt.IsNil)
	c.Assert(reply.ID, qt.Equals, uint64(1))
}

func TestConnectionClosedBeforeReply(t *testing.T) {
	c := qt.New(t)

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		readRequest(r)
		_, _ = conn.Write([]byte(fakedevice.NotificationLine(map[string]string{"bright": "10"}) + "\r\n"))
		_ = conn.Close()
	})

	_, err := s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrConnectionClosed)
	c.Assert(yeelight.IsFatal(err), qt.IsTrue)
	c.Assert(s.Broken(), qt.IsTrue)

	var sessErr *yeelight.SessionError
	c.Assert(err, qt.ErrorAs, &sessErr)
	c.Assert(sessErr.RequestID, qt.Equals, uint64(0))
	c.Assert(sessErr.HasRequest, qt.IsTrue)

	_, err = s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrSessionBroken)
}

func TestInvalidJSONBreaksSessionWithoutResync(t *testing.T) {
	c := qt.New(t)

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		readRequest(r)
		_, _ = conn.Write([]byte("}}garbage{{\r\n" + fakedevice.ReplyLine(0, "ok") + "\r\n"))
	})

	_, err := s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrProtocolCorruption)

	var decodeErr *yeelight.DecodeError
	c.Assert(err, qt.ErrorAs, &decodeErr)
	c.Assert(string(decodeErr.Line), qt.Equals, "}}garbage{{")

	// The valid reply behind the bad line is never delivered.
	_, err = s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrSessionBroken)
}

func TestIDsAreNotReusedAfterFailures(t *testing.T) {
	c := qt.New(t)

	got := make(chan uint64, 2)
	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		req := readRequest(r)
		got <- req.ID
		_, _ = conn.Write([]byte(fakedevice.ErrorLine(req.ID, -5000, "busy") + "\r\n"))
		req = readRequest(r)
		got <- req.ID
		_, _ = conn.Write([]byte(fakedevice.ReplyLine(req.ID, "ok") + "\r\n"))
	})

	// A cancelled context consumes id 0 without writing anything.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Send(ctx, "toggle")
	c.Assert(err, qt.ErrorIs, context.Canceled)
	c.Assert(s.Broken(), qt.IsFalse)

	_, err = s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrRequestRejected)

	_, err = s.Send(context.Background(), "toggle")
	c.Assert(err, qt.IsNil)

	c.Assert(<-got, qt.Equals, uint64(1))
	c.Assert(<-got, qt.Equals, uint64(2))
	c.Assert(s.NextID(), qt.Equals, uint64(3))
}

func TestContextCancelAbortsRead(t *testing.T) {
	c := qt.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		readRequest(r)
		cancel()
		// Never answer; wait for the client to hang up.
		_, _ = r.ReadBytes('\n')
	})

	_, err := s.Send(ctx, "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrTransportFailure)
	c.Assert(err, qt.ErrorIs, context.Canceled)
	c.Assert(s.Broken(), qt.IsTrue)
}

func TestIOTimeout(t *testing.T) {
	c := qt.New(t)

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		readRequest(r)
		_, _ = r.ReadBytes('\n')
	}, yeelight.WithIOTimeout(50*time.Millisecond))

	_, err := s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrTransportFailure)
	c.Assert(err, qt.ErrorIs, os.ErrDeadlineExceeded)
	c.Assert(s.Broken(), qt.IsTrue)
}

func TestSendRejectsInvalidParams(t *testing.T) {
	c := qt.New(t)

	s := pipeSession(c, func(r *bufio.Reader, conn net.Conn) {
		_, _ = r.ReadBytes('\n')
	})

	_, err := s.Send(context.Background(), "set_rgb", []int{1})
	c.Assert(err, qt.ErrorIs, errors.NotValid)
	c.Assert(s.NextID(), qt.Equals, uint64(0))
	c.Assert(s.Broken(), qt.IsFalse)
}

// ─── Over TCP ───────────────────────────────────────────────────────────────────

func startDevice(c *qt.C, handler fakedevice.Handler) *fakedevice.Device {
	d, err := fakedevice.Start(handler)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = d.Close() })
	return d
}

func TestConnectAndExecute(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, func(_ int, req yeelight.Envelope) fakedevice.Response {
		return fakedevice.Response{Lines: []string{
			fakedevice.NotificationLine(map[string]string{"rgb": "16744448"}),
			fakedevice.ReplyLine(req.ID, "ok"),
		}}
	})

	ctx := context.Background()
	s, err := yeelight.Connect(ctx, d.Addr())
	c.Assert(err, qt.IsNil)
	defer s.Close()

	c.Assert(s.Addr(), qt.Equals, d.Addr())
	c.Assert(s.ID(), qt.Not(qt.Equals), "")

	reply, err := s.Execute(ctx, yeelight.SetColor(yeelight.Main, yeelight.RGB(255, 128, 0), yeelight.Smooth, 500))
	c.Assert(err, qt.IsNil)
	c.Assert(reply.OK(), qt.IsTrue)
	c.Assert(s.Skipped(), qt.Equals, uint64(1))

	reqs := d.Requests()
	c.Assert(reqs, qt.HasLen, 1)
	c.Assert(reqs[0], qt.DeepEquals, yeelight.Envelope{
		ID:     0,
		Method: yeelight.MethodSetRGB,
		Params: []any{int64(16744448), "smooth", int64(500)},
	})
}

func TestConnectFailure(t *testing.T) {
	c := qt.New(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	c.Assert(err, qt.IsNil)
	addr := l.Addr().String()
	c.Assert(l.Close(), qt.IsNil)

	_, err = yeelight.Connect(context.Background(), addr, yeelight.WithDialTimeout(time.Second))
	c.Assert(err, qt.ErrorIs, yeelight.ErrConnect)
	c.Assert(yeelight.IsFatal(err), qt.IsFalse)
}

func TestDeviceHangsUpMidLine(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, func(_ int, req yeelight.Envelope) fakedevice.Response {
		return fakedevice.Response{Raw: []byte(`{"id":0,"res`), Close: true}
	})

	s, err := yeelight.Connect(context.Background(), d.Addr())
	c.Assert(err, qt.IsNil)
	defer s.Close()

	_, err = s.Send(context.Background(), "get_prop", "power")
	c.Assert(err, qt.ErrorIs, yeelight.ErrConnectionClosed)
}

func TestCloseAbortsPendingRequest(t *testing.T) {
	c := qt.New(t)

	received := make(chan struct{})
	s := pipeSession(c, func(r *bufio.Reader, _ net.Conn) {
		readRequest(r)
		close(received)
		// Never answer; wait for the client to go away.
		_, _ = r.ReadBytes('\n')
	})

	errc := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "toggle")
		errc <- err
	}()
	<-received

	// The accessors do not wait for the round trip.
	c.Assert(s.NextID(), qt.Equals, uint64(1))
	c.Assert(s.Broken(), qt.IsFalse)

	c.Assert(s.Close(), qt.IsNil)
	select {
	case err := <-errc:
		c.Assert(err, qt.ErrorIs, yeelight.ErrSessionBroken)
	case <-time.After(5 * time.Second):
		c.Fatal("Send still pending after Close")
	}
	c.Assert(s.Broken(), qt.IsTrue)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, fakedevice.OK)
	s, err := yeelight.Connect(context.Background(), d.Addr())
	c.Assert(err, qt.IsNil)

	c.Assert(s.Close(), qt.IsNil)
	c.Assert(s.Close(), qt.IsNil)
	_, err = s.Send(context.Background(), "toggle")
	c.Assert(err, qt.ErrorIs, yeelight.ErrSessionBroken)
}
