// Package fakedevice runs an in-process TCP peer that speaks the light's
// line protocol. Tests script its answers per request.
package fakedevice

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/alparslanahmed/yeelight"
)

var logger = loggo.GetLogger("yeelight.fakedevice")

// Response is what the device does after reading one request.
type Response struct {
	// Lines are written in order, each followed by "\r\n".
	Lines []string

	// Raw is written after Lines without any framing.
	Raw []byte

	// Close hangs up once the writes are done.
	Close bool
}

// Handler scripts the answer to a request. conn counts accepted
// connections from 1.
type Handler func(conn int, req yeelight.Envelope) Response

// Device is a listening fake light.
type Device struct {
	listener net.Listener
	handler  Handler

	mu       sync.Mutex
	requests []yeelight.Envelope
	conns    map[net.Conn]struct{}
	accepted int
	closed   bool

	wg sync.WaitGroup
}

// Start listens on a random loopback port and serves connections until
// Close is called.
func Start(handler Handler) (*Device, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Annotate(err, "listening")
	}
	d := &Device{
		listener: listener,
		handler:  handler,
		conns:    make(map[net.Conn]struct{}),
	}
	d.wg.Add(1)
	go d.acceptLoop()
	return d, nil
}

// Addr returns the host:port the device listens on.
func (d *Device) Addr() string {
	return d.listener.Addr().String()
}

// Requests returns every request read so far, across connections.
func (d *Device) Requests() []yeelight.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]yeelight.Envelope, len(d.requests))
	copy(out, d.requests)
	return out
}

// Connections returns how many connections were accepted.
func (d *Device) Connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// Close stops the listener, drops every connection and waits for the
// serving goroutines to exit.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	err := d.listener.Close()
	for conn := range d.conns {
		_ = conn.Close()
	}
	d.mu.Unlock()

	d.wg.Wait()
	return errors.Trace(err)
}

func (d *Device) acceptLoop() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			_ = conn.Close()
			return
		}
		d.accepted++
		n := d.accepted
		d.conns[conn] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go d.serve(n, conn)
	}
}

func (d *Device) serve(n int, conn net.Conn) {
	defer d.wg.Done()
	defer func() {
		_ = conn.Close()
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
	}()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		req, err := yeelight.DecodeEnvelope(line)
		if err != nil {
			logger.Debugf("conn %d: bad request %q: %v", n, line, err)
			return
		}
		d.mu.Lock()
		d.requests = append(d.requests, req)
		d.mu.Unlock()

		resp := d.handler(n, req)
		for _, l := range resp.Lines {
			if _, err := conn.Write([]byte(l + "\r\n")); err != nil {
				return
			}
		}
		if len(resp.Raw) > 0 {
			if _, err := conn.Write(resp.Raw); err != nil {
				return
			}
		}
		if resp.Close {
			logger.Debugf("conn %d: hanging up after request %d", n, req.ID)
			return
		}
	}
}

// ─── Scripting Helpers ──────────────────────────────────────────────────────────

// ReplyLine renders {"id":id,"result":[result...]}.
func ReplyLine(id uint64, result ...string) string {
	if result == nil {
		result = []string{}
	}
	body, _ := json.Marshal(result)
	return fmt.Sprintf(`{"id":%d,"result":%s}`, id, body)
}

// ErrorLine renders {"id":id,"error":{"code":code,"message":message}}.
func ErrorLine(id uint64, code int, message string) string {
	msg, _ := json.Marshal(message)
	return fmt.Sprintf(`{"id":%d,"error":{"code":%d,"message":%s}}`, id, code, msg)
}

// NotificationLine renders a props notification.
func NotificationLine(props map[string]string) string {
	body, _ := json.Marshal(map[string]any{"method": "props", "params": props})
	return string(body)
}

// OK answers every request with ["ok"].
func OK(_ int, req yeelight.Envelope) Response {
	return Response{Lines: []string{ReplyLine(req.ID, "ok")}}
}
