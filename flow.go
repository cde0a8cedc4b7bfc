package yeelight

import (
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// ─── Flow ───────────────────────────────────────────────────────────────────────
//
// A Flow is an ordered list of steps the light walks through on start_cf.
// On the wire it is a single string of comma separated 4-tuples:
//
//	duration,mode,value,brightness,duration,mode,value,brightness,...
//
// mode 1 is an RGB color, 2 a color temperature and 7 a pause in which the
// light keeps its state.

// MinFlowStep is the shortest step duration the device accepts.
const MinFlowStep TransitionDuration = 50

// FlowStep is one step of a Flow.
type FlowStep struct {
	// Duration is how long the step takes.
	Duration TransitionDuration

	// Color is the target color. Nil makes the step a pause.
	Color *Color

	// Brightness is the target brightness. Ignored for pauses.
	Brightness Brightness
}

// Flow is a color flow definition.
//
//	red := yeelight.RGB(255, 0, 0)
//	warm, _ := yeelight.Temperature(2700)
//	flow := yeelight.NewFlow().
//	    Color(1000, red, 100).
//	    Sleep(500).
//	    Color(1000, warm, 40)
type Flow struct {
	Steps []FlowStep
}

// NewFlow returns an empty flow.
func NewFlow() *Flow {
	return &Flow{}
}

// Color appends a step moving to c at brightness b. Only RGB colors and
// temperatures can be used in a flow.
func (f *Flow) Color(d TransitionDuration, c Color, b Brightness) *Flow {
	f.Steps = append(f.Steps, FlowStep{Duration: d, Color: &c, Brightness: b})
	return f
}

// Sleep appends a pause.
func (f *Flow) Sleep(d TransitionDuration) *Flow {
	f.Steps = append(f.Steps, FlowStep{Duration: d})
	return f
}

// Expression renders the flow as the device's flow expression.
func (f *Flow) Expression() (string, error) {
	if f == nil || len(f.Steps) == 0 {
		return "", errors.NotValidf("empty flow")
	}
	parts := make([]string, 0, len(f.Steps)*4)
	for i, step := range f.Steps {
		if step.Duration < MinFlowStep {
			return "", errors.NotValidf("flow step %d duration %dms (want >= %d)", i, step.Duration, MinFlowStep)
		}
		mode, value, bright, err := step.tuple()
		if err != nil {
			return "", errors.Annotatef(err, "flow step %d", i)
		}
		parts = append(parts,
			strconv.FormatInt(step.Duration.Milliseconds(), 10),
			strconv.Itoa(int(mode)),
			strconv.Itoa(value),
			strconv.Itoa(bright),
		)
	}
	return strings.Join(parts, ","), nil
}

func (s FlowStep) tuple() (FlowMode, int, int, error) {
	if s.Color == nil {
		return FlowModeSleep, 0, 0, nil
	}
	switch s.Color.kind {
	case colorRGB:
		return FlowModeColor, s.Color.PackedRGB(), int(s.Brightness), nil
	case colorTemperature:
		return FlowModeTemperature, s.Color.temperature, int(s.Brightness), nil
	default:
		return 0, 0, 0, errors.NotSupportedf("%s in a flow", s.Color)
	}
}
