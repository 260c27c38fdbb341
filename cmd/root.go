// Package cmd wires up the CLI flags and starts the bridge.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"

	flag "github.com/spf13/pflag"

	"ser2tcp/config"
	"ser2tcp/internal/bridge"
	ncerr "ser2tcp/internal/errors"
	"ser2tcp/internal/metrics"
	"ser2tcp/internal/serial"
	"ser2tcp/internal/transport"
	"ser2tcp/tunnel"
	"ser2tcp/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X ser2tcp/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// invocation is the parsed command line.
type invocation struct {
	cfg     *config.Config
	fs      *flag.FlagSet
	help    bool
	version bool
	list    bool
	dryRun  bool
}

// Execute parses args and runs the bridge until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	inv, err := parseArgs(args)
	if err != nil {
		return err
	}

	switch {
	case inv.help:
		printUsage(inv.fs)
		return nil
	case inv.version:
		fmt.Printf("ser2tcp %s\n", version)
		return nil
	case inv.list:
		return listPorts()
	}

	cfg := inv.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}
	if inv.dryRun {
		fmt.Printf("ser2tcp: %s at %d baud %d%s%s, listening on %s\n",
			cfg.Device, cfg.Baud, cfg.DataBits, cfg.Parity, cfg.StopBits, listenTarget(cfg))
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)
	srv := bridge.New(bridge.Options{
		Device: cfg.Device,
		Serial: serial.Options{
			Baud:         cfg.Baud,
			DataBits:     cfg.DataBits,
			Parity:       cfg.Parity,
			StopBits:     cfg.StopBits,
			PollInterval: cfg.PollInterval,
		},
		Listener:         buildListener(cfg, logger),
		ExitOnDeviceLoss: cfg.ExitOnDeviceLoss,
		GracePeriod:      config.DefaultGracePeriod,
		Logger:           logger,
		Metrics:          metrics.New(),
	})
	return srv.Run(ctx)
}

// parseArgs applies defaults, then SER2TCP_* variables, then flags.
func parseArgs(args []string) (*invocation, error) {
	cfg := config.New()
	config.LoadFromEnv(cfg)

	inv := &invocation{cfg: cfg}
	fs := flag.NewFlagSet("ser2tcp", flag.ContinueOnError)
	inv.fs = fs

	// ── serial ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.Device, "port", "p", cfg.Device, "Serial device (COM7, /dev/ttyUSB0, …)")
	fs.IntVarP(&cfg.Baud, "baud", "b", cfg.Baud, "Baud rate")
	fs.IntVar(&cfg.DataBits, "data-bits", cfg.DataBits, "Data bits (5-8)")
	fs.StringVar(&cfg.Parity, "parity", cfg.Parity, "Parity: N, E, O, M or S")
	fs.StringVar(&cfg.StopBits, "stop-bits", cfg.StopBits, "Stop bits: 1, 1.5 or 2")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Serial read timeout")
	fs.BoolVar(&cfg.ExitOnDeviceLoss, "exit-on-device-loss", cfg.ExitOnDeviceLoss,
		"Exit with an error when the serial device disappears")

	// ── network ──────────────────────────────────────────────────
	fs.StringVarP(&cfg.ListenAddress, "listen", "l", cfg.ListenAddress, "Address to listen on")
	fs.IntVarP(&cfg.ListenPort, "tcp-port", "t", cfg.ListenPort, "TCP port to listen on")
	fs.DurationVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "TCP keepalive period for clients (0 = OS default)")

	// ── SSH exposure ─────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Expose the bridge on an SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	var verbosity int
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")

	fs.BoolVar(&inv.list, "list", false, "List serial ports and exit")
	fs.BoolVar(&inv.dryRun, "dry-run", false, "Validate the configuration and exit")
	fs.BoolVar(&inv.version, "version", false, "Print version and exit")
	fs.BoolVarP(&inv.help, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}
	if fs.Changed("verbose") {
		cfg.Verbose = verbosity
	}

	if cfg.TunnelSpec != "" {
		u, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return nil, &ncerr.ConfigError{
				Field:   "tunnel",
				Value:   cfg.TunnelSpec,
				Message: err.Error(),
				Hint:    "expected [user@]host[:port]",
			}
		}
		if u == "" {
			u = currentUser()
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = u
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}
	return inv, nil
}

func buildListener(cfg *config.Config, logger *util.Logger) transport.Listener {
	if !cfg.TunnelEnabled {
		return &transport.TCPListener{Address: cfg.ListenAddr(), KeepAlive: cfg.KeepAlive}
	}
	return transport.NewSSHListener(&tunnel.SSHConfig{
		User:          cfg.TunnelUser,
		Host:          cfg.TunnelHost,
		Port:          cfg.TunnelPort,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   config.DefaultConnTimeout,
		KeepAlive:     config.DefaultSSHKeepAlive,
	}, cfg.ListenAddress, cfg.ListenPort, logger)
}

func listenTarget(cfg *config.Config) string {
	if cfg.TunnelEnabled {
		return fmt.Sprintf("%s on %s@%s", cfg.ListenAddr(), cfg.TunnelUser,
			util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
	return cfg.ListenAddr()
}

func listPorts() error {
	ports, err := serial.List()
	if err != nil {
		return fmt.Errorf("listing serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(os.Stderr, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `ser2tcp – serial to TCP bridge v%s

Exposes a serial device on a TCP port.  One client is served at a
time; further clients are disconnected until it leaves.

Usage:
  ser2tcp [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  ser2tcp -p /dev/ttyUSB0 -b 9600            Serve on 0.0.0.0:5000
  ser2tcp -p COM3 -l 127.0.0.1 -t 7000 -v    Local only, with logging
  ser2tcp --parity E --stop-bits 2           8E2 framing
  ser2tcp -T pi@gateway.example -t 5000      Expose on an SSH gateway
  ser2tcp --list                             Show serial ports
`)
}
