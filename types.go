package yeelight

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

// ─── Protocol Constants ─────────────────────────────────────────────────────────

const (
	// DefaultPort is the TCP port a light listens on for control connections.
	DefaultPort = 55443

	// DefaultDialTimeout bounds how long Connect waits for the TCP handshake
	// when the context carries no deadline of its own.
	DefaultDialTimeout = 5 * time.Second

	// lineTerminator ends every message in both directions.
	lineTerminator = "\r\n"
)

// ─── Methods ────────────────────────────────────────────────────────────────────

// Method is the name of a device method, carried in the "method" field of
// every outbound envelope.
type Method string

const (
	// MethodGetProp reads one or more properties ("power", "bright", "ct" ...).
	MethodGetProp Method = "get_prop"

	// MethodSetCTAbx sets the color temperature.
	MethodSetCTAbx Method = "set_ct_abx"

	// MethodSetRGB sets an RGB color packed into a single integer.
	MethodSetRGB Method = "set_rgb"

	// MethodSetHSV sets a hue/saturation pair.
	MethodSetHSV Method = "set_hsv"

	// MethodSetBright sets the brightness.
	MethodSetBright Method = "set_bright"

	// MethodSetPower switches the light on or off.
	MethodSetPower Method = "set_power"

	// MethodToggle flips the power state.
	MethodToggle Method = "toggle"

	// MethodSetDefault stores the current state as the power-on default.
	MethodSetDefault Method = "set_default"

	// MethodStartCF starts a color flow.
	MethodStartCF Method = "start_cf"

	// MethodStopCF stops a running color flow.
	MethodStopCF Method = "stop_cf"

	// MethodSetScene jumps directly to a scene.
	MethodSetScene Method = "set_scene"

	// MethodCronAdd starts a sleep timer.
	MethodCronAdd Method = "cron_add"

	// MethodCronGet reads the sleep timer.
	MethodCronGet Method = "cron_get"

	// MethodCronDel cancels the sleep timer.
	MethodCronDel Method = "cron_del"

	// MethodSetAdjust nudges a property without knowing its current value.
	MethodSetAdjust Method = "set_adjust"

	// MethodSetMusic turns music mode on or off.
	MethodSetMusic Method = "set_music"

	// MethodSetName names the device.
	MethodSetName Method = "set_name"

	// MethodAdjustBright changes brightness by a percentage.
	MethodAdjustBright Method = "adjust_bright"

	// MethodAdjustCT changes color temperature by a percentage.
	MethodAdjustCT Method = "adjust_ct"

	// MethodAdjustColor changes color by a percentage.
	MethodAdjustColor Method = "adjust_color"

	// MethodDevToggle toggles both the main and the background light.
	MethodDevToggle Method = "dev_toggle"
)

// backgroundCapable lists the methods that have a bg_ twin.
var backgroundCapable = map[Method]bool{
	MethodSetCTAbx:     true,
	MethodSetRGB:       true,
	MethodSetHSV:       true,
	MethodSetBright:    true,
	MethodSetPower:     true,
	MethodToggle:       true,
	MethodSetDefault:   true,
	MethodStartCF:      true,
	MethodStopCF:       true,
	MethodSetScene:     true,
	MethodSetAdjust:    true,
	MethodAdjustBright: true,
	MethodAdjustCT:     true,
	MethodAdjustColor:  true,
}

// Target selects which light of a device a command addresses.
type Target int

const (
	// Main is the primary light.
	Main Target = iota
	// Background is the secondary (ambient) light found on some ceiling lamps.
	Background
)

// String returns the name of the target.
func (t Target) String() string {
	switch t {
	case Main:
		return "main"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("Target(%d)", int(t))
	}
}

// For returns the method name that addresses m on target t. Methods without a
// background variant are returned unchanged.
func (t Target) For(m Method) Method {
	if t == Background && backgroundCapable[m] {
		return "bg_" + m
	}
	return m
}

// ─── Transition Effects ─────────────────────────────────────────────────────────

// Effect is the transition style appended to every transition command.
type Effect int

const (
	// Smooth fades to the new state over the transition duration.
	Smooth Effect = iota
	// Sudden jumps to the new state; the duration is ignored by the device.
	Sudden
)

// String returns the wire token of the effect.
func (e Effect) String() string {
	switch e {
	case Sudden:
		return "sudden"
	case Smooth:
		return "smooth"
	default:
		return fmt.Sprintf("Effect(%d)", int(e))
	}
}

// ParseEffect maps a wire token back to an Effect.
func ParseEffect(s string) (Effect, error) {
	switch s {
	case "sudden":
		return Sudden, nil
	case "smooth":
		return Smooth, nil
	default:
		return 0, errors.NotValidf("effect %q", s)
	}
}

// ─── Enumerations ───────────────────────────────────────────────────────────────

// FlowAction is what the light does when a flow ends.
type FlowAction int

const (
	FlowRecover FlowAction = 0 // Return to the state before the flow
	FlowStay    FlowAction = 1 // Keep the state of the last step
	FlowTurnOff FlowAction = 2 // Switch off
)

// FlowMode is the mode field of a single flow expression tuple.
type FlowMode int

const (
	FlowModeColor       FlowMode = 1
	FlowModeTemperature FlowMode = 2
	FlowModeSleep       FlowMode = 7
)

// CronType selects the timer a cron command works on. The device only knows
// the power-off timer.
type CronType int

const (
	CronTurnOff CronType = 0
)

// AdjustAction is the action argument of set_adjust.
type AdjustAction string

const (
	AdjustIncrease AdjustAction = "increase"
	AdjustDecrease AdjustAction = "decrease"
	AdjustCircle   AdjustAction = "circle" // Wraps around at the maximum
)

// AdjustProp is the property argument of set_adjust.
type AdjustProp string

const (
	AdjustBrightProp AdjustProp = "bright"
	AdjustCTProp     AdjustProp = "ct"
	AdjustColorProp  AdjustProp = "color" // Only accepts AdjustCircle
)

// ─── Options ────────────────────────────────────────────────────────────────────

// SessionOption configures a Session.
// Functional Options pattern.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	dialTimeout time.Duration
	ioTimeout   time.Duration
	logger      Logger
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		dialTimeout: DefaultDialTimeout,
		ioTimeout:   0,
		logger:      logger,
	}
}

// WithDialTimeout bounds the TCP handshake performed by Connect.
//
//	s, err := yeelight.Connect(ctx, "192.168.1.7:55443",
//	    yeelight.WithDialTimeout(2*time.Second),
//	)
func WithDialTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.dialTimeout = d
	}
}

// WithIOTimeout arms a connection deadline for every round trip. The
// protocol has no timeout of its own; a zero value (the default) waits
// forever. A round trip that hits the deadline breaks the session.
func WithIOTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) {
		o.ioTimeout = d
	}
}

// WithLogger replaces the session logger. By default the session logs to the
// "yeelight.session" loggo module.
func WithLogger(l Logger) SessionOption {
	return func(o *sessionOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// ─── Logger ─────────────────────────────────────────────────────────────────────

// Logger is the logging interface used by the library. A loggo.Logger
// satisfies it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Tracef(format string, args ...interface{})
}

var logger Logger = loggo.GetLogger("yeelight.session")
