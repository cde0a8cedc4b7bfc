package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"

	"github.com/alparslanahmed/yeelight"
	"github.com/alparslanahmed/yeelight/config"
)

// commandOptions carries the parsed command flags to a builder.
type commandOptions struct {
	target   yeelight.Target
	effect   yeelight.Effect
	duration yeelight.TransitionDuration
}

type subcommand struct {
	args    string
	summary string

	// transition adds --effect and --duration.
	transition bool

	// background adds --bg.
	background bool

	build func(opts commandOptions, args []string) (yeelight.Command, error)

	// output prints the reply. Nil prints the result entries on one line.
	output func(w io.Writer, args []string, reply *yeelight.Reply)
}

var subcommands = map[string]subcommand{
	"rgb": {
		args:       "R G B",
		summary:    "Set an RGB color",
		transition: true,
		background: true,
		build: func(opts commandOptions, args []string) (yeelight.Command, error) {
			if err := wantArgs(args, 3); err != nil {
				return yeelight.Command{}, err
			}
			var rgb [3]uint8
			for i, arg := range args {
				v, err := intArg(arg, 0, 255)
				if err != nil {
					return yeelight.Command{}, errors.Trace(err)
				}
				rgb[i] = uint8(v)
			}
			return yeelight.SetColor(opts.target, yeelight.RGB(rgb[0], rgb[1], rgb[2]), opts.effect, opts.duration), nil
		},
	},
	"ct": {
		args:       "KELVIN",
		summary:    "Set the color temperature",
		transition: true,
		background: true,
		build: func(opts commandOptions, args []string) (yeelight.Command, error) {
			if err := wantArgs(args, 1); err != nil {
				return yeelight.Command{}, err
			}
			k, err := strconv.Atoi(args[0])
			if err != nil {
				return yeelight.Command{}, errors.NotValidf("temperature %q", args[0])
			}
			c, err := yeelight.Temperature(k)
			if err != nil {
				return yeelight.Command{}, errors.Trace(err)
			}
			return yeelight.SetColor(opts.target, c, opts.effect, opts.duration), nil
		},
	},
	"hsv": {
		args:       "HUE SAT",
		summary:    "Set hue and saturation",
		transition: true,
		background: true,
		build: func(opts commandOptions, args []string) (yeelight.Command, error) {
			if err := wantArgs(args, 2); err != nil {
				return yeelight.Command{}, err
			}
			hue, err := strconv.Atoi(args[0])
			if err != nil {
				return yeelight.Command{}, errors.NotValidf("hue %q", args[0])
			}
			sat, err := strconv.Atoi(args[1])
			if err != nil {
				return yeelight.Command{}, errors.NotValidf("saturation %q", args[1])
			}
			c, err := yeelight.HSV(hue, sat)
			if err != nil {
				return yeelight.Command{}, errors.Trace(err)
			}
			return yeelight.SetColor(opts.target, c, opts.effect, opts.duration), nil
		},
	},
	"bright": {
		args:       "PERCENT",
		summary:    "Set the brightness",
		transition: true,
		background: true,
		build: func(opts commandOptions, args []string) (yeelight.Command, error) {
			if err := wantArgs(args, 1); err != nil {
				return yeelight.Command{}, err
			}
			v, err := intArg(args[0], 0, 100)
			if err != nil {
				return yeelight.Command{}, errors.Trace(err)
			}
			b, err := yeelight.NewBrightness(v)
			if err != nil {
				return yeelight.Command{}, errors.Trace(err)
			}
			return yeelight.SetBright(opts.target, b, opts.effect, opts.duration), nil
		},
	},
	"power": {
		args:       "on|off",
		summary:    "Switch the light on or off",
		transition: true,
		background: true,
		build: func(opts commandOptions, args []string) (yeelight.Command, error) {
			if err := wantArgs(args, 1); err != nil {
				return yeelight.Command{}, err
			}
			switch args[0] {
			case "on":
				return yeelight.SetPower(opts.target, true, opts.effect, opts.duration), nil
			case "off":
				return yeelight.SetPower(opts.target, false, opts.effect, opts.duration), nil
			default:
				return yeelight.Command{}, errors.NotValidf("power state %q", args[0])
			}
		},
	},
	"toggle": {
		summary:    "Flip the power state",
		background: true,
		build: func(opts commandOptions, args []string) (yeelight.Command, error) {
			if err := wantArgs(args, 0); err != nil {
				return yeelight.Command{}, err
			}
			return yeelight.Toggle(opts.target), nil
		},
	},
	"prop": {
		args:    "NAME...",
		summary: "Read properties",
		build: func(_ commandOptions, args []string) (yeelight.Command, error) {
			return yeelight.GetProp(args...)
		},
		output: func(w io.Writer, args []string, reply *yeelight.Reply) {
			for i, name := range args {
				value := ""
				if i < len(reply.Result) {
					value = reply.Result[i]
				}
				fmt.Fprintf(w, "%s=%s\n", name, value)
			}
		},
	},
	"name": {
		args:    "NAME",
		summary: "Store a name on the device",
		build: func(_ commandOptions, args []string) (yeelight.Command, error) {
			name, err := yeelight.NewName(strings.Join(args, " "))
			if err != nil {
				return yeelight.Command{}, errors.Trace(err)
			}
			return yeelight.SetName(name), nil
		},
	},
	"raw": {
		args:    "METHOD [PARAM...]",
		summary: "Send any method; params are JSON scalars or bare strings",
		build: func(_ commandOptions, args []string) (yeelight.Command, error) {
			if len(args) == 0 {
				return yeelight.Command{}, errors.NotValidf("missing method")
			}
			params := make([]any, len(args)-1)
			for i, arg := range args[1:] {
				params[i] = rawParam(arg)
			}
			return yeelight.NewCommand(yeelight.Method(args[0]), params...)
		},
	},
}

// parseFlags parses the command's own flags, with defaults from cfg.
func (sub subcommand) parseFlags(name string, cfg *config.Config, args []string, stderr io.Writer) (commandOptions, []string, error) {
	var (
		effect   string
		duration time.Duration
		bg       bool
	)
	fs := gnuflag.NewFlagSet(name, gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	if sub.transition {
		fs.StringVar(&effect, "effect", cfg.Effect().String(), "transition effect: smooth or sudden")
		fs.DurationVar(&duration, "duration", cfg.TransitionDuration().Duration(), "transition duration")
	}
	if sub.background {
		fs.BoolVar(&bg, "bg", false, "address the background light")
	}
	if err := fs.Parse(true, args); err != nil {
		return commandOptions{}, nil, errors.Trace(err)
	}

	opts := commandOptions{target: yeelight.Main}
	if bg {
		opts.target = yeelight.Background
	}
	if sub.transition {
		e, err := yeelight.ParseEffect(effect)
		if err != nil {
			return commandOptions{}, nil, errors.Trace(err)
		}
		d, err := yeelight.NewTransitionDuration(duration)
		if err != nil {
			return commandOptions{}, nil, errors.Trace(err)
		}
		opts.effect, opts.duration = e, d
	}
	return opts, fs.Args(), nil
}

func (sub subcommand) print(w io.Writer, args []string, reply *yeelight.Reply) {
	if sub.output != nil {
		sub.output(w, args, reply)
		return
	}
	fmt.Fprintln(w, strings.Join(reply.Result, " "))
}

func wantArgs(args []string, n int) error {
	if len(args) != n {
		return errors.NotValidf("%d arguments (want %d)", len(args), n)
	}
	return nil
}

func intArg(s string, min, max int) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < min || v > max {
		return 0, errors.NotValidf("%q (want %d-%d)", s, min, max)
	}
	return v, nil
}

// rawParam decodes arg as a JSON value, falling back to the literal string.
// Integers keep their full precision.
func rawParam(arg string) any {
	dec := json.NewDecoder(strings.NewReader(arg))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return arg
	}
	if err := dec.Decode(new(any)); err != io.EOF {
		return arg
	}
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}
	f, err := n.Float64()
	if err != nil {
		return arg
	}
	return f
}
