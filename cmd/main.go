// linuxmacro - input macro recorder
// Records events from a Linux input device and replays them through uinput
// with their original timing.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"linuxmacro/internal/api"
	"linuxmacro/internal/clock"
	"linuxmacro/internal/config"
	"linuxmacro/internal/console"
	"linuxmacro/internal/engine"
	"linuxmacro/internal/host"
	"linuxmacro/internal/input"
	"linuxmacro/internal/logging"
	"linuxmacro/internal/macro"
	"linuxmacro/internal/macrofile"
	"linuxmacro/internal/protocol"
	"linuxmacro/internal/remote"
	"linuxmacro/internal/statsview"
	"linuxmacro/internal/tray"
)

var (
	version    = "0.1.0"
	configPath = flag.String("config", "", "Path to the configuration file")
	devicePath = flag.String("device", "", "Input device to load at startup (overrides config)")
	virtual    = flag.Bool("virtual", false, "Load the virtual replay-only device at startup")
	listDevs   = flag.Bool("list", false, "List input devices")
	dumpFile   = flag.String("dump", "", "Print the events of a saved macro file")
	headless   = flag.Bool("headless", false, "Run without the tray, reading commands from the terminal")
	remoteAddr = flag.String("remote", "", "Send the command given as arguments to a running instance at host:port")
	stats      = flag.Bool("statsview", false, "Serve runtime statistics on "+statsview.DefaultAddress)
	writeCfg   = flag.Bool("write-config", false, "Write the effective configuration to the config file and exit")
	showVer    = flag.Bool("version", false, "Show version")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("linuxmacro version %s\n", version)
		return
	}

	// Handle --list flag
	if *listDevs {
		listDevices()
		return
	}

	// Handle --dump flag
	if *dumpFile != "" {
		dumpMacro(*dumpFile)
		return
	}

	cfgMgr, err := newConfigManager()
	if err != nil {
		logrus.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		logrus.Fatalf("Failed to load config %s: %v", cfgMgr.Path(), err)
	}
	cfg := cfgMgr.Get()

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		logrus.Fatalf("Invalid logging configuration: %v", err)
	}
	cfgMgr.SetLogger(logging.Component(logger, "config"))

	// Handle --remote flag
	if *remoteAddr != "" {
		os.Exit(sendRemote(cfg, logger, *remoteAddr, flag.Args()))
	}

	if *devicePath != "" {
		cfg.Device.Path = *devicePath
	}
	if *virtual {
		cfg.Device.Path = ""
		cfg.Device.Virtual = true
	}

	if *writeCfg {
		if err := cfgMgr.Set(cfg); err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}
		if err := cfgMgr.Save(); err != nil {
			logrus.Fatalf("Failed to save config: %v", err)
		}
		fmt.Println(cfgMgr.Path())
		return
	}

	runService(cfgMgr, cfg, logger)
}

func newConfigManager() (*config.Manager, error) {
	if *configPath != "" {
		return config.NewManagerAt(*configPath), nil
	}
	return config.NewManager()
}

func listDevices() {
	devices, err := input.List()
	if err != nil {
		logrus.Fatalf("Failed to list input devices: %v", err)
	}

	fmt.Println("Input Devices:")
	fmt.Println("--------------")
	for _, d := range devices {
		fmt.Printf("%s\t%s\n", d.Path, d.Name)
	}
}

func dumpMacro(path string) {
	f, err := macrofile.ReadFile(path)
	if err != nil {
		logrus.Fatalf("Failed to read %s: %v", path, err)
	}
	events, err := f.Sequence()
	if err != nil {
		logrus.Fatalf("Failed to read %s: %v", path, err)
	}

	fmt.Printf("ID: %s\n", f.ID)
	fmt.Printf("  Created: %s\n", f.Created.Format(time.RFC3339))
	if f.Device != "" {
		fmt.Printf("  Device: %s\n", f.Device)
	}
	fmt.Printf("  Events: %d\n\n", len(events))
	for i, ev := range events {
		fmt.Printf("%6d  %s\n", i, input.Describe(ev))
	}
}

func sendRemote(cfg config.Config, logger *logrus.Logger, addr string, args []string) int {
	if len(args) == 0 {
		args = []string{protocol.CmdStatus}
	}
	line := protocol.Command{Name: args[0], Args: args[1:]}.String()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := remote.NewClient(addr, cfg.API.Token, logging.Component(logger, "remote")).Send(ctx, line)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", line, err)
		return 1
	}
	fmt.Println(st)
	return 0
}

func runService(cfgMgr *config.Manager, cfg config.Config, logger *logrus.Logger) {
	log := logging.Component(logger, "main")
	log.Info("Macro recorder starting...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Only the log level is applied live; other settings need a restart
	cfgMgr.RegisterChangeCallback(func() {
		level := cfgMgr.Get().Logging.Level
		if err := logging.SetLevel(logger, level); err != nil {
			log.WithError(err).Warn("Ignoring reloaded log level")
			return
		}
		log.Infof("Configuration reloaded, log level %s", level)
	})
	go reloadOnHangup(ctx, cfgMgr, log)

	var trailer *macro.Triple
	if cfg.Playback.TrailingSync {
		syn := input.SynReport
		trailer = &syn
	}
	session := engine.NewSession(engine.Options{
		Clock:     clock.Monotonic{},
		Logger:    logging.Component(logger, "engine"),
		MaxEvents: cfg.Recording.MaxEvents,
		Skip:      engine.SkipPolicy{Margin: cfg.SkipMargin()},
		Trailer:   trailer,
	})
	h := host.New(host.Options{
		Session:      session,
		TickInterval: cfg.TickInterval(),
		Open:         input.OpenAny,
		Logger:       logging.Component(logger, "host"),
	})

	// Front-ends register here before the loop starts
	var listeners []func(protocol.Status)
	var wg sync.WaitGroup

	if cfg.API.Enabled {
		srv := api.NewServer(h, cfg.API.Token, logging.Component(logger, "api"))
		listeners = append(listeners, srv.BroadcastStatus)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx, cfg.API.Port); err != nil {
				log.WithError(err).Error("API server stopped")
				log.Warn("Continuing without remote control support")
			}
		}()
	}

	if *stats {
		statsview.Launch(ctx, statsview.DefaultAddress, logging.Component(logger, "statsview"))
	}

	if *headless || cfg.UI.ConsoleBindings {
		con, err := console.Open(logging.Component(logger, "console"))
		if err != nil {
			log.WithError(err).Warn("Terminal key bindings unavailable")
		} else {
			listeners = append(listeners, con.Update)
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer con.Close()
				err := con.Run(ctx, h.ExecuteLine)
				if errors.Is(err, console.ErrQuit) {
					log.Info("Quit requested from terminal")
					cancel()
				}
			}()
		}
	}

	var menu *tray.Menu
	if cfg.UI.Tray && !*headless {
		menu = tray.NewMenu(h.ExecuteLine, cancel, logging.Component(logger, "tray"))
		listeners = append(listeners, menu.Update)
	}

	h.SetOnStatus(func(st protocol.Status) {
		for _, fn := range listeners {
			fn(st)
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.Run(ctx)
	}()

	loadStartupDevice(ctx, h, cfg, log)

	if menu != nil {
		go func() {
			<-ctx.Done()
			menu.Stop()
		}()
		// systray must own the main goroutine
		menu.Run(cancel)
	} else {
		<-ctx.Done()
	}

	log.Info("Shutting down...")
	cancel()
	wg.Wait()
}

func reloadOnHangup(ctx context.Context, cfgMgr *config.Manager, log *logrus.Entry) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-hup:
			if err := cfgMgr.Load(); err != nil {
				log.WithError(err).Error("Failed to reload config")
			}
		case <-ctx.Done():
			return
		}
	}
}

func loadStartupDevice(ctx context.Context, h *host.Host, cfg config.Config, log *logrus.Entry) {
	path := cfg.Device.Path
	if path == "" && cfg.Device.Virtual {
		path = input.VirtualPath
	}
	if path == "" {
		log.Info("No device configured; use the load command to attach one")
		return
	}

	line := protocol.Command{Name: protocol.CmdLoad, Args: []string{path}}.String()
	if _, err := h.ExecuteLine(ctx, line); err != nil {
		log.WithError(err).Warnf("Failed to load %s", path)
	}
}
