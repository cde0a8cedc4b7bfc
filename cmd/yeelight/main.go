// Command yeelight sends one command to a light and prints the reply.
//
//	yeelight --addr 192.168.1.7 rgb 255 128 0
//	yeelight --addr 192.168.1.7 bright --bg --duration 2s 40
//	yeelight prop power bright ct
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"

	"github.com/alparslanahmed/yeelight/config"
	"github.com/alparslanahmed/yeelight/controller"
)

const version = "0.1.0"

var logger = loggo.GetLogger("yeelight.cmd")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// globalFlags are accepted before the command name.
type globalFlags struct {
	configPath string
	addr       string
	logSpec    string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var g globalFlags
	fs := gnuflag.NewFlagSet("yeelight", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", "", "path to config.toml (default: user config dir)")
	fs.StringVar(&g.addr, "addr", "", "device address, host[:port]")
	fs.StringVar(&g.logSpec, "log", "", "logging specification, e.g. <root>=DEBUG")
	fs.Usage = func() {
		usage(stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(false, args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return 2
	}

	name, cmdArgs := rest[0], rest[1:]
	var err error
	switch name {
	case "version":
		fmt.Fprintln(stdout, version)
		return 0
	case "init":
		err = initCommand(g, cmdArgs, stdout, stderr)
	default:
		sub, ok := subcommands[name]
		if !ok {
			fmt.Fprintf(stderr, "unknown command %q\n", name)
			usage(stderr)
			return 2
		}
		err = deviceCommand(ctx, g, name, sub, cmdArgs, stdout, stderr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "%s error: %v\n", name, err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: yeelight [options] <command> [command options] [args]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %-28s %s\n", "init", "Write a default config.toml")
	names := make([]string, 0, len(subcommands))
	for name := range subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sub := subcommands[name]
		fmt.Fprintf(w, "  %-28s %s\n", name+" "+sub.args, sub.summary)
	}
	fmt.Fprintf(w, "  %-28s %s\n", "version", "Print the version")
	fmt.Fprintln(w, "Options:")
}

func initCommand(g globalFlags, args []string, stdout, stderr io.Writer) error {
	var force bool
	fs := gnuflag.NewFlagSet("init", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&force, "force", false, "overwrite an existing config")
	if err := fs.Parse(true, args); err != nil {
		return errors.Trace(err)
	}

	path, err := configPath(g)
	if err != nil {
		return errors.Trace(err)
	}
	if _, err := os.Stat(path); err == nil && !force {
		return errors.AlreadyExistsf("config %s (use --force to overwrite)", path)
	}
	cfg := config.Default()
	cfg.Address = g.addr
	if err := config.Save(path, cfg); err != nil {
		return errors.Trace(err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", path)
	return nil
}

func deviceCommand(ctx context.Context, g globalFlags, name string, sub subcommand, args []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return errors.Trace(err)
	}
	spec := cfg.Logging.Spec
	if g.logSpec != "" {
		spec = g.logSpec
	}
	if err := loggo.ConfigureLoggers(spec); err != nil {
		return errors.Annotate(err, "configuring logging")
	}

	opts, rest, err := sub.parseFlags(name, cfg, args, stderr)
	if err != nil {
		return errors.Trace(err)
	}
	cmd, err := sub.build(opts, rest)
	if err != nil {
		return errors.Trace(err)
	}

	addr, err := cfg.DeviceAddress()
	if err != nil {
		return errors.Annotate(err, "no device address (use --addr or the config file)")
	}
	ctrl, err := controller.New(controllerConfig(cfg, addr))
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		ctrl.Kill()
		_ = ctrl.Wait()
	}()

	logger.Debugf("sending %s to %s", cmd, addr)
	res, err := ctrl.Execute(ctx, cmd)
	if err != nil {
		return errors.Trace(err)
	}
	logger.Debugf("job %s: session %s request %d after %d attempt(s)", res.JobID, res.SessionID, res.RequestID, res.Attempts)
	sub.print(stdout, rest, res.Reply)
	return nil
}

func configPath(g globalFlags) (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	return config.DefaultPath()
}

// loadConfig reads the config file and applies --addr. A missing file at
// the default location is not an error.
func loadConfig(g globalFlags) (*config.Config, error) {
	path, err := configPath(g)
	if err != nil {
		return nil, errors.Trace(err)
	}
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case g.configPath == "" && os.IsNotExist(errors.Cause(err)):
		cfg = config.Default()
	default:
		return nil, errors.Trace(err)
	}
	if g.addr != "" {
		cfg.Address = g.addr
	}
	return cfg, nil
}

func controllerConfig(cfg *config.Config, addr string) controller.Config {
	return controller.Config{
		Address:        addr,
		SessionOptions: cfg.SessionOptions(),
		QueueSize:      cfg.QueueSize,
		RetryAttempts:  cfg.Retry.Attempts,
		RetryDelay:     cfg.Retry.Delay.Duration,
		MaxRetryDelay:  cfg.Retry.MaxDelay.Duration,
	}
}
