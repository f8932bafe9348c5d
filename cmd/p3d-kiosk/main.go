package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stmh/gsc-brain-interface/internal/config"
	"github.com/stmh/gsc-brain-interface/internal/content"
	"github.com/stmh/gsc-brain-interface/internal/discovery"
	"github.com/stmh/gsc-brain-interface/internal/event"
	"github.com/stmh/gsc-brain-interface/internal/health"
	"github.com/stmh/gsc-brain-interface/internal/logging"
	"github.com/stmh/gsc-brain-interface/internal/player"
	"github.com/stmh/gsc-brain-interface/internal/surface"
)

var log = logging.L("main")

var (
	version     = "0.1.0"
	cfgFile     string
	readStdin   bool
	discoverFor time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "p3d-kiosk",
	Short: "Kiosk presentation player",
	Long:  `p3d-kiosk finds a presentation server and an OSC control sink on the local network, shows the server's interface and resets itself after a period without visitors.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the player",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKiosk()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("p3d-kiosk v%s\n", version)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, loader, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		result := cfg.ValidateTiered()
		for _, e := range result.AllErrors() {
			fmt.Fprintf(os.Stderr, "# %v\n", e)
		}
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		if f := loader.File(); f != "" {
			fmt.Printf("# %s\n", f)
		} else {
			fmt.Println("# defaults (no config file found)")
		}
		os.Stdout.Write(out)
		if result.HasFatals() {
			return fmt.Errorf("configuration has %d fatal errors", len(result.Fatals))
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe <host:port>",
	Short: "Fetch the interface file from a content server once",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return probe(cmd.Context(), args[0])
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Print content servers and control sinks as they are announced",
	RunE: func(cmd *cobra.Command, args []string) error {
		return discover(cmd.Context(), discoverFor)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/p3d-kiosk/kiosk.yaml)")
	runCmd.Flags().BoolVar(&readStdin, "stdin", false, "read operator commands from stdin even without a terminal")
	discoverCmd.Flags().DurationVar(&discoverFor, "for", 10*time.Second, "how long to browse (0 browses until interrupted)")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(discoverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the config and initializes logging from it.
func loadConfig() (*config.Config, *config.Loader, *logging.RotatingWriter, error) {
	cfg, loader, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	out, rotator, err := logging.Output(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)

	result := cfg.ValidateTiered()
	for _, w := range result.Warnings {
		log.Warn("config validation", logging.KeyError, w)
	}
	if result.HasFatals() {
		for _, f := range result.Fatals {
			log.Error("config validation", logging.KeyError, f)
		}
		return nil, nil, nil, fmt.Errorf("invalid configuration (%d errors)", len(result.Fatals))
	}
	return cfg, loader, rotator, nil
}

func runKiosk() error {
	cfg, loader, rotator, err := loadConfig()
	if err != nil {
		return err
	}
	if rotator != nil {
		defer rotator.Close()
	}

	var in io.Reader
	if readStdin || hasConsole() {
		in = os.Stdin
	}

	monitor := health.NewMonitor()
	p, err := player.New(cfg, player.Options{
		Surface:   surface.New(os.Stdout),
		Input:     in,
		Monitor:   monitor,
		UserAgent: "p3d-kiosk/" + version,
	})
	if err != nil {
		return err
	}

	loader.Watch(func(c *config.Config) {
		log.Info("config file changed", "file", loader.File())
		p.SetIdleBudget(c.IdleTimeout)
	}, func(err error) {
		log.Warn("ignoring config change", logging.KeyError, err)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if rotator != nil {
					if err := rotator.Reopen(); err != nil {
						log.Warn("failed to reopen log file", logging.KeyError, err)
					}
				}
				log.Info("resync requested")
				p.Resync()
			}
		}
	}()

	log.Info("starting p3d-kiosk", "version", version, "config", loader.File())
	err = p.Run(ctx)
	log.Info("p3d-kiosk stopped")
	return err
}

func probe(ctx context.Context, addr string) error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	ev, err := discovery.StaticAnnouncement(event.RoleContentServer, addr)
	if err != nil {
		return err
	}

	f := content.NewFetcher(content.FetcherOptions{
		Timeout:      cfg.Content.RequestTimeout,
		PreviewBytes: cfg.Content.PreviewBytes,
		MaxBytes:     cfg.Content.MaxBytes,
		UserAgent:    "p3d-kiosk/" + version,
	})
	url := content.InterfaceURL(ev.Host, ev.Port, cfg.Content.InterfaceFile)

	for _, stage := range []content.Stage{content.StagePreview, content.StageFull} {
		start := time.Now()
		c, err := f.Fetch(ctx, url, stage)
		if err != nil {
			return fmt.Errorf("could not read interface from %s: %w", url, err)
		}
		fmt.Printf("%-8s %s  %d bytes  %s", stage, url, len(c.Body), time.Since(start).Round(time.Millisecond))
		if c.Title != "" {
			fmt.Printf("  %q", c.Title)
		}
		fmt.Println()
	}
	return nil
}

func discover(ctx context.Context, d time.Duration) error {
	cfg, _, _, err := loadConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	b := discovery.New(discovery.Options{
		Domain: cfg.Discovery.Domain,
		Services: []discovery.Service{
			{Role: event.RoleContentServer, Type: cfg.Discovery.ContentService},
			{Role: event.RoleControlSink, Type: cfg.Discovery.ControlService},
		},
	}, func(ev event.Discovery) {
		fmt.Printf("%s  %-14s %-11s %-22s %s\n", time.Now().Format("15:04:05"), ev.Role, ev.Action, ev.Address(), ev.Instance)
	})
	b.Run(ctx)
	return nil
}
