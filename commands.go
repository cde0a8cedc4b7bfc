package yeelight

import (
	"github.com/juju/errors"
)

// ─── Command Families ───────────────────────────────────────────────────────────
//
// Each function below turns validated values into a Command. None of them
// touches the network; hand the result to Session.Execute or to a
// controller.
//
//	cmd := yeelight.SetColor(yeelight.Main, yeelight.RGB(255, 128, 0), yeelight.Smooth, 500)
//	reply, err := session.Execute(ctx, cmd)

// withTransition appends the effect token and the duration in milliseconds,
// the two trailing parameters of every transition command.
func withTransition(params []any, effect Effect, d TransitionDuration) []any {
	return append(params, effect.String(), d.Milliseconds())
}

// ─── Color / Brightness / Power ─────────────────────────────────────────────────

// SetColor applies an RGB color, a color temperature or a hue/saturation
// pair. The method is picked from the color:
//
//	RGB          -> set_rgb    [packed, effect, duration]
//	Temperature  -> set_ct_abx [t, t, t, effect, duration]
//	HSV          -> set_hsv    [hue, sat, effect, duration]
func SetColor(target Target, c Color, effect Effect, d TransitionDuration) Command {
	return command(target.For(c.method()), withTransition(c.params(), effect, d)...)
}

// SetBright sets the brightness.
func SetBright(target Target, b Brightness, effect Effect, d TransitionDuration) Command {
	return command(target.For(MethodSetBright), withTransition([]any{int(b)}, effect, d)...)
}

// SetPower switches the light on or off.
func SetPower(target Target, on bool, effect Effect, d TransitionDuration) Command {
	return command(target.For(MethodSetPower), withTransition([]any{powerToken(on)}, effect, d)...)
}

func powerToken(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// Toggle flips the power state.
func Toggle(target Target) Command {
	return command(target.For(MethodToggle))
}

// DevToggle flips the power state of both the main and the background light.
func DevToggle() Command {
	return command(MethodDevToggle)
}

// SetDefault saves the current state as the power-on default.
func SetDefault(target Target) Command {
	return command(target.For(MethodSetDefault))
}

// ─── Adjustments ────────────────────────────────────────────────────────────────

// SetAdjust nudges a property. AdjustColorProp only accepts AdjustCircle.
func SetAdjust(target Target, action AdjustAction, prop AdjustProp) (Command, error) {
	switch action {
	case AdjustIncrease, AdjustDecrease, AdjustCircle:
	default:
		return Command{}, errors.NotValidf("adjust action %q", action)
	}
	switch prop {
	case AdjustBrightProp, AdjustCTProp:
	case AdjustColorProp:
		if action != AdjustCircle {
			return Command{}, errors.NotValidf("adjust %q on color", action)
		}
	default:
		return Command{}, errors.NotValidf("adjust prop %q", prop)
	}
	return command(target.For(MethodSetAdjust), string(action), string(prop)), nil
}

// AdjustBright changes the brightness by p percent over d.
func AdjustBright(target Target, p Percentage, d TransitionDuration) Command {
	return command(target.For(MethodAdjustBright), int(p), d.Milliseconds())
}

// AdjustCT changes the color temperature by p percent over d.
func AdjustCT(target Target, p Percentage, d TransitionDuration) Command {
	return command(target.For(MethodAdjustCT), int(p), d.Milliseconds())
}

// AdjustColor changes the color by p percent over d.
func AdjustColor(target Target, p Percentage, d TransitionDuration) Command {
	return command(target.For(MethodAdjustColor), int(p), d.Milliseconds())
}

// ─── Flows & Scenes ─────────────────────────────────────────────────────────────

// StartFlow runs flow count times (0 loops forever) and then applies action.
func StartFlow(target Target, count int, action FlowAction, flow *Flow) (Command, error) {
	if count < 0 {
		return Command{}, errors.NotValidf("flow count %d", count)
	}
	expr, err := flow.Expression()
	if err != nil {
		return Command{}, errors.Trace(err)
	}
	return command(target.For(MethodStartCF), count, int(action), expr), nil
}

// StopFlow stops a running flow.
func StopFlow(target Target) Command {
	return command(target.For(MethodStopCF))
}

// Scene is a ready-made set_scene parameter list.
type Scene struct {
	class  string
	params []any
}

// ColorScene switches on directly into c at brightness b.
func ColorScene(c Color, b Brightness) Scene {
	switch c.kind {
	case colorTemperature:
		return Scene{class: "ct", params: []any{c.temperature, int(b)}}
	case colorHSV:
		return Scene{class: "hsv", params: []any{c.hue, c.sat, int(b)}}
	default:
		return Scene{class: "color", params: []any{c.PackedRGB(), int(b)}}
	}
}

// FlowScene switches on directly into a flow.
func FlowScene(count int, action FlowAction, flow *Flow) (Scene, error) {
	if count < 0 {
		return Scene{}, errors.NotValidf("flow count %d", count)
	}
	expr, err := flow.Expression()
	if err != nil {
		return Scene{}, errors.Trace(err)
	}
	return Scene{class: "cf", params: []any{count, int(action), expr}}, nil
}

// AutoDelayOffScene switches on at brightness b and off again after delay.
func AutoDelayOffScene(b Brightness, delay Delay) Scene {
	return Scene{class: "auto_delay_off", params: []any{int(b), int64(delay)}}
}

// SetScene applies a scene.
func SetScene(target Target, scene Scene) (Command, error) {
	if scene.class == "" {
		return Command{}, errors.NotValidf("zero scene")
	}
	params := append([]any{scene.class}, scene.params...)
	return command(target.For(MethodSetScene), params...), nil
}

// ─── Timers ─────────────────────────────────────────────────────────────────────

// CronAdd switches the light off after delay.
func CronAdd(delay Delay) Command {
	return command(MethodCronAdd, int(CronTurnOff), int64(delay))
}

// CronGet reads the power-off timer.
func CronGet() Command {
	return command(MethodCronGet, int(CronTurnOff))
}

// CronDel cancels the power-off timer.
func CronDel() Command {
	return command(MethodCronDel, int(CronTurnOff))
}

// ─── Music Mode / Name / Properties ─────────────────────────────────────────────

// SetMusic asks the device to connect back to host:port and take commands
// from there without rate limiting.
func SetMusic(host string, port int) (Command, error) {
	if host == "" {
		return Command{}, errors.NotValidf("empty music host")
	}
	if port < 1 || port > 65535 {
		return Command{}, errors.NotValidf("music port %d", port)
	}
	return command(MethodSetMusic, 1, host, port), nil
}

// StopMusic leaves music mode.
func StopMusic() Command {
	return command(MethodSetMusic, 0)
}

// SetName stores a name on the device.
func SetName(name Name) Command {
	return command(MethodSetName, string(name))
}

// GetProp reads properties. The reply lists the values in request order,
// with an empty string for properties the device does not know.
func GetProp(props ...string) (Command, error) {
	if len(props) == 0 {
		return Command{}, errors.NotValidf("empty property list")
	}
	params := make([]any, len(props))
	for i, p := range props {
		if p == "" {
			return Command{}, errors.NotValidf("empty property name at %d", i)
		}
		params[i] = p
	}
	return command(MethodGetProp, params...), nil
}
