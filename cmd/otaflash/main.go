// Command otaflash updates device firmware over BLE or a serial link.
//
// Usage:
//
//	otaflash [flags] flash <image.bin>
//	otaflash [flags] uuid
//	otaflash [flags] reset
//	otaflash ports
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/moffa90/go-otaflash/bootloader"
	"github.com/moffa90/go-otaflash/config"
	"github.com/moffa90/go-otaflash/firmware"
	"github.com/moffa90/go-otaflash/session"
	"github.com/moffa90/go-otaflash/simulator"
	"github.com/moffa90/go-otaflash/transport/ble"
	"github.com/moffa90/go-otaflash/transport/serial"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"
	"tinygo.org/x/bluetooth"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 130
)

type flags struct {
	configPath   string
	transport    string
	kind         string
	bleAddress   string
	withResponse bool
	writeSize    int
	port         string
	baud         int
	connect      time.Duration
	yes          bool
	debug        bool
}

func parseFlags() *flags {
	f := &flags{}

	flag.StringVar(&f.configPath, "config", "", "Config file (default ~/.otaflash/config.yaml)")
	flag.StringVar(&f.transport, "transport", "", "Transport: ble, serial or sim")
	flag.StringVar(&f.kind, "kind", "", "Firmware kind: primary or secondary")
	flag.StringVar(&f.bleAddress, "address", "", "BLE peripheral address")
	flag.BoolVar(&f.withResponse, "with-response", false, "Use acknowledged BLE writes")
	flag.IntVar(&f.writeSize, "write-size", 0, "Split frames into BLE writes of this size (0 = whole frame)")
	flag.StringVar(&f.port, "port", "", "Serial port")
	flag.IntVar(&f.baud, "baud", 0, "Serial baud rate")
	flag.DurationVar(&f.connect, "connect-timeout", 30*time.Second, "Time allowed to find and connect to the device")
	flag.BoolVar(&f.yes, "yes", false, "Do not ask for confirmation before flashing")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] flash <image.bin> | uuid | reset | ports\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	return f
}

// apply overrides cfg with the flags given on the command line.
func (f *flags) apply(cfg *config.Config) {
	if f.transport != "" {
		cfg.Transport = f.transport
	}
	if f.kind != "" {
		cfg.Kind = f.kind
	}
	if f.bleAddress != "" {
		cfg.BLE.Address = f.bleAddress
	}
	if f.withResponse {
		cfg.BLE.WithResponse = true
	}
	if f.writeSize > 0 {
		cfg.BLE.WriteSize = f.writeSize
	}
	if f.port != "" {
		cfg.Serial.Port = f.port
	}
	if f.baud > 0 {
		cfg.Serial.Baud = f.baud
	}
	if f.debug {
		cfg.Debug = true
	}
}

// loadConfig reads the config file, applies the flag overrides and validates
// the result.
func loadConfig(f *flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	f := parseFlags()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "flash"
	}
	if cmd == "ports" {
		return listPorts(log)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Error(err)
		return exitUsage
	}
	if cfg.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	if cfg.Path != "" {
		log.WithField("path", cfg.Path).Debug("config loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "flash":
		path := flag.Arg(1)
		if path == "" {
			path = cfg.Firmware
		}
		if path == "" {
			flag.Usage()
			return exitUsage
		}
		if path, err = config.ExpandPath(path); err != nil {
			log.Error(err)
			return exitUsage
		}
		return flash(ctx, log, cfg, f, path)
	case "uuid", "reset":
		return command(ctx, log, cfg, f, cmd)
	default:
		flag.Usage()
		return exitUsage
	}
}

func flash(ctx context.Context, log *logrus.Logger, cfg *config.Config, f *flags, path string) int {
	kind, err := cfg.FirmwareKind()
	if err != nil {
		log.Error(err)
		return exitUsage
	}

	info, err := os.Stat(path)
	if err != nil {
		log.Error(err)
		return exitFailure
	}
	if !f.yes {
		if err := confirm(path, info.Size(), kind, cfg); err != nil {
			log.Error(err)
			return exitCancelled
		}
	}

	opts, err := cfg.ProgrammerOptions()
	if err != nil {
		log.Error(err)
		return exitUsage
	}

	link, closeLink, err := openTransport(ctx, cfg, f.connect)
	if err != nil {
		log.Error(err)
		return exitFailure
	}
	defer closeLink()

	ctrl := session.New(link,
		session.WithLogger(logrusLogger{log}),
		session.WithProgrammerOptions(opts...),
	)
	ctrl.AddSink(newView(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())), log))

	if err := ctrl.Start(firmware.FileSource(path), kind); err != nil {
		log.Error(err)
		return exitFailure
	}

	go func() {
		<-ctx.Done()
		ctrl.Cancel()
	}()

	res := ctrl.Wait()
	switch {
	case res.Success:
		return exitOK
	case res.Cancelled:
		return exitCancelled
	default:
		return exitFailure
	}
}

func command(ctx context.Context, log *logrus.Logger, cfg *config.Config, f *flags, cmd string) int {
	opts, err := cfg.ProgrammerOptions()
	if err != nil {
		log.Error(err)
		return exitUsage
	}

	link, closeLink, err := openTransport(ctx, cfg, f.connect)
	if err != nil {
		log.Error(err)
		return exitFailure
	}
	defer closeLink()

	prog := bootloader.New(link, append(opts, bootloader.WithLogger(logrusLogger{log}))...)

	switch cmd {
	case "uuid":
		uuid, err := prog.ReadUUID(ctx)
		if err != nil {
			log.Error(err)
			return exitFailure
		}
		fmt.Printf("%X\n", uuid)
	case "reset":
		if err := prog.Reset(ctx); err != nil {
			log.Error(err)
			return exitFailure
		}
		color.HiGreen("Reset sent")
	}
	return exitOK
}

func confirm(path string, size int64, kind firmware.Kind, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("confirmation required: run with -yes")
	}

	target := cfg.Transport
	switch cfg.Transport {
	case config.TransportBLE:
		target += " " + cfg.BLE.Address
	case config.TransportSerial:
		target += " " + cfg.Serial.Port
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("Flash %s (%d bytes) as %s image over %s", path, size, kind, target),
		IsConfirm: true,
	}
	if _, err := prompt.Run(); err != nil {
		return errors.New("flashing aborted")
	}
	return nil
}

func openTransport(ctx context.Context, cfg *config.Config, connectTimeout time.Duration) (bootloader.Transport, func() error, error) {
	switch cfg.Transport {
	case config.TransportBLE:
		dctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		link, err := ble.Dial(dctx, bluetooth.DefaultAdapter, ble.Config{
			Address:     cfg.BLE.Address,
			ServiceUUID: cfg.BLE.ServiceUUID,
			WriteUUID:   cfg.BLE.WriteUUID,
			NotifyUUID:  cfg.BLE.NotifyUUID,
			Options: ble.Options{
				WithResponse: cfg.BLE.WithResponse,
				WriteSize:    cfg.BLE.WriteSize,
			},
		})
		if err != nil {
			return nil, nil, err
		}
		return link, link.Close, nil
	case config.TransportSerial:
		port, err := serial.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, nil, err
		}
		return port, port.Close, nil
	case config.TransportSim:
		return simulator.New(simulator.WithLatency(2 * time.Millisecond)), func() error { return nil }, nil
	default:
		return nil, nil, errors.Errorf("unsupported transport %q", cfg.Transport)
	}
}

func listPorts(log *logrus.Logger) int {
	ports, err := serial.Ports()
	if err != nil {
		log.Error(err)
		return exitFailure
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return exitOK
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return exitOK
}
