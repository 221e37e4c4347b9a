package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/CZERTAINLY/Prospect/internal/history"
	"github.com/CZERTAINLY/Prospect/internal/log"
	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/service"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

const configName = "prospect.yaml"

var (
	userConfigPath string // /default/config/path/prospect on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	flagConfigFilePath string        // value of --config flag
	flagVerbose        bool          // value of --verbose flag
	flagTimeout        time.Duration // value of run --timeout flag
	flagCron           string        // value of watch --cron flag
	flagEvery          string        // value of watch --every flag
	flagLimit          int           // value of history --limit flag
)

// flagKeys maps flags to the config keys they override
var flagKeys = map[string]string{
	"server":   service.KeyServerURL,
	"interval": service.KeyPollInterval,
	"verbose":  service.KeyVerbose,
	"filter":   service.KeyServerFilter,
	"format":   service.KeyFormat,
	"dir":      service.KeyDir,
	"history":  service.KeyHistory,
}

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "prospect")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")
	rootCmd.PersistentFlags().String("server", "", "job service url, overrides server.url")
	rootCmd.PersistentFlags().String("interval", "", "ISO-8601 delay between status checks, e.g. PT2S, overrides poll.interval")
	rootCmd.PersistentFlags().String("format", "", "stdout format: text or json")
	rootCmd.PersistentFlags().String("dir", "", "directory for xlsx and json reports")
	rootCmd.PersistentFlags().String("history", "", "sqlite file recording submitted jobs and their outcomes")

	runCmd.Flags().String("filter", "", "opaque filter forwarded to the job service")
	runCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "give up waiting for the result after this duration, 0 waits forever")

	watchCmd.Flags().String("filter", "", "opaque filter forwarded to the job service")
	watchCmd.Flags().StringVar(&flagCron, "cron", "", "cron expression scheduling new jobs, overrides service.schedule")
	watchCmd.Flags().StringVar(&flagEvery, "every", "", "ISO-8601 duration between new jobs, overrides service.schedule")

	historyCmd.Flags().IntVar(&flagLimit, "limit", 20, "number of most recent jobs to show, 0 shows all")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initProspect

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("prospect failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "prospect",
	Short:        "Client submitting jobs to a job service and polling for their results",
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run submits a single job, waits for it and prints the result",
	Args:  cobra.NoArgs,
	RunE:  doRun,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "watch submits a new job on a schedule and prints every result",
	Args:  cobra.NoArgs,
	RunE:  doWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "history lists the most recent jobs recorded in service.history",
	Args:  cobra.NoArgs,
	RunE:  doHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a prospect",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("prospect: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:   %s\n", configPath)
		}
		fmt.Printf("prospect: %s\n", info.Main.Version)
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:     %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if flagTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagTimeout)
		defer cancel()
	}
	attrs := slog.Group("prospect",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	cfg := config
	cfg.Service.Mode = model.ServiceModeManual
	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	return svc.Do(ctx)
}

func doWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("prospect",
		slog.String("cmd", "watch"),
		slog.Int("pid", os.Getpid()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	cfg := config
	cfg.Service.Mode = model.ServiceModeTimer
	schedule, err := scheduleFlags(cfg.Service.Schedule)
	if err != nil {
		return err
	}
	cfg.Service.Schedule = schedule

	svc, err := service.New(ctx, cfg)
	if err != nil {
		return err
	}
	return svc.Do(ctx)
}

func doHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if config.Service.History == "" {
		return fmt.Errorf("service.history is not configured: use --history or the config file")
	}
	if !exists(config.Service.History) {
		return fmt.Errorf("job history %s does not exist", config.Service.History)
	}
	db, err := history.Open(ctx, config.Service.History)
	if err != nil {
		return fmt.Errorf("opening job history: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	rows, err := db.List(ctx, flagLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, r := range rows {
		if _, err := fmt.Fprintln(out, r.String()); err != nil {
			return err
		}
	}
	return nil
}

// scheduleFlags applies --cron and --every; either of them replaces the
// whole schedule from the config file.
func scheduleFlags(fromFile *model.TimerSchedule) (*model.TimerSchedule, error) {
	switch {
	case flagCron != "" && flagEvery != "":
		return nil, fmt.Errorf("--cron and --every are mutually exclusive")
	case flagCron != "":
		if _, _, err := model.ParseCron(flagCron); err != nil {
			return nil, fmt.Errorf("parsing --cron: %w", err)
		}
		return &model.TimerSchedule{Cron: flagCron}, nil
	case flagEvery != "":
		var d model.Duration
		if err := d.UnmarshalText([]byte(flagEvery)); err != nil {
			return nil, fmt.Errorf("parsing --every: %w", err)
		}
		return &model.TimerSchedule{Duration: &d}, nil
	}
	return fromFile, nil
}

func initProspect(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("PROSPECTCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{".", userConfigPath} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	var err error
	if configPath == "" {
		configPath = filepath.Join(userConfigPath, configName)
		config, err = storeDefaultConfig(cmd.Context(), configPath)
		if err != nil {
			return err
		}
	} else {
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	v, err := service.NewViper(cmd.Flags(), flagKeys)
	if err != nil {
		return err
	}
	config, err = service.ApplyOverrides(v, config)
	if err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}

	// initialize logging
	slog.SetDefault(log.New(os.Stderr, config.Service.Verbose))

	slog.Debug("prospect run", "configPath", configPath)
	slog.Debug("prospect run", "config", config)
	return nil
}

func storeDefaultConfig(ctx context.Context, path string) (model.Config, error) {
	cfg := model.DefaultConfig(ctx)
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return cfg, fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return cfg, fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return cfg, fmt.Errorf("storing configuration: %w", err)
	}
	return cfg, nil
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid config", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
