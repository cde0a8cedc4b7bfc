package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/alparslanahmed/yeelight"
	"github.com/alparslanahmed/yeelight/config"
	"github.com/alparslanahmed/yeelight/internal/fakedevice"
)

type runResult struct {
	code   int
	stdout string
	stderr string
}

func runCLI(c *qt.C, args ...string) runResult {
	// Keep the user's real config out of the way.
	c.Setenv("XDG_CONFIG_HOME", c.TempDir())
	c.Setenv("HOME", c.TempDir())

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func startDevice(c *qt.C, handler fakedevice.Handler) *fakedevice.Device {
	d, err := fakedevice.Start(handler)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = d.Close() })
	return d
}

func TestVersion(t *testing.T) {
	c := qt.New(t)

	res := runCLI(c, "version")
	c.Assert(res.code, qt.Equals, 0)
	c.Assert(res.stdout, qt.Equals, version+"\n")
}

func TestUnknownCommand(t *testing.T) {
	c := qt.New(t)

	res := runCLI(c, "dance")
	c.Assert(res.code, qt.Equals, 2)
	c.Assert(res.stderr, qt.Contains, `unknown command "dance"`)
}

func TestRGB(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, fakedevice.OK)
	res := runCLI(c, "--addr", d.Addr(), "rgb", "--effect", "sudden", "255", "128", "0")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))
	c.Assert(res.stdout, qt.Equals, "ok\n")

	reqs := d.Requests()
	c.Assert(reqs, qt.HasLen, 1)
	c.Assert(reqs[0].Method, qt.Equals, yeelight.MethodSetRGB)
	c.Assert(reqs[0].Params, qt.DeepEquals, []any{int64(16744448), "sudden", int64(500)})
}

func TestBackgroundBrightness(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, fakedevice.OK)
	res := runCLI(c, "--addr", d.Addr(), "bright", "--bg", "--duration", "1s", "40")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))

	reqs := d.Requests()
	c.Assert(reqs, qt.HasLen, 1)
	c.Assert(reqs[0].Method, qt.Equals, yeelight.Method("bg_set_bright"))
	c.Assert(reqs[0].Params, qt.DeepEquals, []any{int64(40), "smooth", int64(1000)})
}

func TestProp(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, func(_ int, req yeelight.Envelope) fakedevice.Response {
		return fakedevice.Response{Lines: []string{
			fakedevice.NotificationLine(map[string]string{"power": "on"}),
			fakedevice.ReplyLine(req.ID, "on", "80", ""),
		}}
	})
	res := runCLI(c, "--addr", d.Addr(), "prop", "power", "bright", "nope")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))
	c.Assert(res.stdout, qt.Equals, "power=on\nbright=80\nnope=\n")
}

func TestRaw(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, fakedevice.OK)
	res := runCLI(c, "--addr", d.Addr(), "raw", "set_ct_abx", "3000", "smooth", "500")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))

	reqs := d.Requests()
	c.Assert(reqs, qt.HasLen, 1)
	c.Assert(reqs[0].Method, qt.Equals, yeelight.MethodSetCTAbx)
	c.Assert(reqs[0].Params, qt.DeepEquals, []any{int64(3000), "smooth", int64(500)})
}

func TestRawKeepsIntegerPrecision(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, fakedevice.OK)
	res := runCLI(c, "--addr", d.Addr(), "raw", "set_music", "9007199254740993", "18446744073709551615", "1.5", "true", "1 2")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))

	reqs := d.Requests()
	c.Assert(reqs, qt.HasLen, 1)
	c.Assert(reqs[0].Params, qt.DeepEquals, []any{
		int64(9007199254740993),
		uint64(18446744073709551615),
		1.5,
		true,
		"1 2",
	})
}

func TestRawParam(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		arg  string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"9007199254740993", int64(9007199254740993)},
		{"18446744073709551615", uint64(18446744073709551615)},
		{"2.5", 2.5},
		{"1e400", "1e400"},
		{"false", false},
		{`"quoted"`, "quoted"},
		{"smooth", "smooth"},
		{"3 4", "3 4"},
	} {
		c.Check(rawParam(test.arg), qt.DeepEquals, test.want, qt.Commentf("%s", test.arg))
	}
}

func TestDeviceRejection(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, func(_ int, req yeelight.Envelope) fakedevice.Response {
		return fakedevice.Response{Lines: []string{fakedevice.ErrorLine(req.ID, -1, "invalid params")}}
	})
	res := runCLI(c, "--addr", d.Addr(), "power", "on")
	c.Assert(res.code, qt.Equals, 1)
	c.Assert(res.stderr, qt.Contains, "invalid params")
	c.Assert(d.Requests(), qt.HasLen, 1)
}

func TestInvalidArguments(t *testing.T) {
	c := qt.New(t)

	for _, args := range [][]string{
		{"rgb", "255", "128"},
		{"rgb", "256", "0", "0"},
		{"ct", "1000"},
		{"hsv", "101", "0"},
		{"power", "maybe"},
		{"bright", "--effect", "fade", "10"},
		{"prop"},
		{"raw"},
	} {
		res := runCLI(c, append([]string{"--addr", "127.0.0.1:1"}, args...)...)
		c.Assert(res.code, qt.Equals, 1, qt.Commentf("%v", args))
		c.Assert(res.stderr, qt.Contains, "not valid", qt.Commentf("%v", args))
	}
}

func TestMissingAddress(t *testing.T) {
	c := qt.New(t)

	res := runCLI(c, "toggle")
	c.Assert(res.code, qt.Equals, 1)
	c.Assert(res.stderr, qt.Contains, "no device address")
}

func TestInitWritesConfig(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(c.TempDir(), "config.toml")
	res := runCLI(c, "--config", path, "--addr", "lamp.local", "init")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))
	c.Assert(res.stdout, qt.Equals, "wrote "+path+"\n")

	cfg, err := config.Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Address, qt.Equals, "lamp.local")

	res = runCLI(c, "--config", path, "init")
	c.Assert(res.code, qt.Equals, 1)
	c.Assert(res.stderr, qt.Contains, "already exists")

	res = runCLI(c, "--config", path, "init", "--force")
	c.Assert(res.code, qt.Equals, 0)
}

func TestConfigFileSuppliesAddress(t *testing.T) {
	c := qt.New(t)

	d := startDevice(c, fakedevice.OK)
	path := filepath.Join(c.TempDir(), "config.toml")
	cfg := config.Default()
	cfg.Address = d.Addr()
	cfg.Transition.DurationMs = 250
	c.Assert(config.Save(path, cfg), qt.IsNil)

	res := runCLI(c, "--config", path, "toggle")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))

	res = runCLI(c, "--config", path, "power", "off")
	c.Assert(res.code, qt.Equals, 0, qt.Commentf("stderr: %s", res.stderr))

	reqs := d.Requests()
	c.Assert(reqs, qt.HasLen, 2)
	c.Assert(reqs[0].Method, qt.Equals, yeelight.MethodToggle)
	c.Assert(reqs[1].Params, qt.DeepEquals, []any{"off", "smooth", int64(250)})
}
