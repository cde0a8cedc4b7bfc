package yeelight

import (
	"fmt"
	"math"
	"time"

	"github.com/juju/errors"
)

// ─── Validated Values ───────────────────────────────────────────────────────────
//
// Every value a command adapter accepts is built by a constructor that
// rejects out-of-range input with an error satisfying
// errors.Is(err, errors.NotValid). A value that exists is always in range,
// so the adapters and the codec never check again.

// Brightness is a brightness level in percent, 0-100.
type Brightness uint8

// NewBrightness validates a brightness level.
func NewBrightness(v int) (Brightness, error) {
	if v < 0 || v > 100 {
		return 0, errors.NotValidf("brightness %d (want 0-100)", v)
	}
	return Brightness(v), nil
}

// Percentage is a relative adjustment, -100 to 100.
type Percentage int8

// NewPercentage validates an adjustment percentage.
func NewPercentage(v int) (Percentage, error) {
	if v < -100 || v > 100 {
		return 0, errors.NotValidf("percentage %d (want -100-100)", v)
	}
	return Percentage(v), nil
}

// TransitionDuration is the length of a transition in milliseconds.
type TransitionDuration uint32

// NewTransitionDuration converts d to whole milliseconds.
func NewTransitionDuration(d time.Duration) (TransitionDuration, error) {
	ms := d.Milliseconds()
	if ms < 0 || ms > math.MaxUint32 {
		return 0, errors.NotValidf("transition duration %v", d)
	}
	return TransitionDuration(ms), nil
}

// Milliseconds returns the duration as sent on the wire.
func (t TransitionDuration) Milliseconds() int64 {
	return int64(t)
}

// Duration returns the duration as a time.Duration.
func (t TransitionDuration) Duration() time.Duration {
	return time.Duration(t) * time.Millisecond
}

// Delay is a sleep-timer length in minutes.
type Delay uint32

// NewDelay validates a timer length. The device rejects zero.
func NewDelay(minutes int) (Delay, error) {
	if minutes < 1 || int64(minutes) > math.MaxUint32 {
		return 0, errors.NotValidf("delay %d minutes", minutes)
	}
	return Delay(minutes), nil
}

// Name is a device name.
type Name string

// NewName validates a device name.
func NewName(s string) (Name, error) {
	if s == "" {
		return "", errors.NotValidf("empty name")
	}
	return Name(s), nil
}

// ─── Color ──────────────────────────────────────────────────────────────────────

type colorKind int

const (
	colorRGB colorKind = iota
	colorTemperature
	colorHSV
)

const (
	// MinTemperature and MaxTemperature bound Temperature.
	MinTemperature = 1700
	MaxTemperature = 6500

	// MaxHue and MaxSaturation bound HSV.
	MaxHue        = 100
	MaxSaturation = 359
)

// Color is one of an RGB triple, a color temperature or a hue/saturation
// pair. The zero value is RGB black.
type Color struct {
	kind        colorKind
	r, g, b     uint8
	temperature int
	hue, sat    int
}

// RGB builds an RGB color. Every triple is valid.
//
//	red := yeelight.RGB(255, 0, 0)
func RGB(r, g, b uint8) Color {
	return Color{kind: colorRGB, r: r, g: g, b: b}
}

// Temperature builds a color temperature in Kelvin, 1700-6500.
func Temperature(kelvin int) (Color, error) {
	if kelvin < MinTemperature || kelvin > MaxTemperature {
		return Color{}, errors.NotValidf("color temperature %dK (want %d-%d)", kelvin, MinTemperature, MaxTemperature)
	}
	return Color{kind: colorTemperature, temperature: kelvin}, nil
}

// HSV builds a hue/saturation pair, hue 0-100 and saturation 0-359.
func HSV(hue, sat int) (Color, error) {
	if hue < 0 || hue > MaxHue {
		return Color{}, errors.NotValidf("hue %d (want 0-%d)", hue, MaxHue)
	}
	if sat < 0 || sat > MaxSaturation {
		return Color{}, errors.NotValidf("saturation %d (want 0-%d)", sat, MaxSaturation)
	}
	return Color{kind: colorHSV, hue: hue, sat: sat}, nil
}

// PackedRGB returns r*65536 + g*256 + b, the single integer set_rgb takes.
func (c Color) PackedRGB() int {
	return int(c.r)<<16 | int(c.g)<<8 | int(c.b)
}

// method returns the set_* method that applies the color.
func (c Color) method() Method {
	switch c.kind {
	case colorTemperature:
		return MethodSetCTAbx
	case colorHSV:
		return MethodSetHSV
	default:
		return MethodSetRGB
	}
}

// params returns the leading parameters of the set_* command: one packed
// integer for RGB, the temperature three times, or hue then saturation.
func (c Color) params() []any {
	switch c.kind {
	case colorTemperature:
		return []any{c.temperature, c.temperature, c.temperature}
	case colorHSV:
		return []any{c.hue, c.sat}
	default:
		return []any{c.PackedRGB()}
	}
}

// String returns a readable form of the color.
func (c Color) String() string {
	switch c.kind {
	case colorTemperature:
		return fmt.Sprintf("%dK", c.temperature)
	case colorHSV:
		return fmt.Sprintf("hsv(%d,%d)", c.hue, c.sat)
	default:
		return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
	}
}
