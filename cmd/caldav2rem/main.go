// Command caldav2rem downloads CalDAV calendars and writes them as remind(1)
// reminder files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/cyp0633/caldav2rem/davclient"
	"github.com/cyp0633/caldav2rem/internal/config"
	"github.com/cyp0633/caldav2rem/internal/export"
	"github.com/cyp0633/caldav2rem/internal/httpclient"
	"github.com/cyp0633/caldav2rem/internal/logging"
	"github.com/cyp0633/caldav2rem/internal/scheduler"
)

// stringList collects a repeatable flag
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type flagConfig struct {
	configPath string
	outDir     string
	once       bool
	list       bool
	logLevel   string
	calendars  stringList
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig

	fs := flag.NewFlagSet("caldav2rem", flag.ContinueOnError)
	fs.StringVar(&cfg.configPath, "config", "caldav2rem.yaml", "Path to config file")
	fs.StringVar(&cfg.outDir, "out", "", "Output directory (overrides config; \"-\" writes to stdout)")
	fs.BoolVar(&cfg.once, "once", false, "Convert once and exit even if a schedule is configured")
	fs.BoolVar(&cfg.list, "list", false, "List calendars and exit")
	fs.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	fs.Var(&cfg.calendars, "calendar", "Calendar display name to convert (repeatable)")

	err := fs.Parse(args)
	return cfg, err
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "caldav2rem:", err)
		}
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	applyFlags(conf, flags)
	if err := conf.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(stderr, conf.LogLevel, conf.LogFormat)
	if err != nil {
		return err
	}
	logger = logger.With("run_id", uuid.New().String())

	loc, err := conf.Location()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("effective config",
		"server", conf.Server,
		"port", conf.Port,
		"fetch_strategy", conf.FetchStrategy,
		"fetch_concurrency", conf.FetchConcurrency,
		"connection_key", conf.ConnectionKey,
		"timezone", loc.String(),
		"output_dir", conf.OutputDir,
		"calendars", len(conf.Calendars),
		"schedule", conf.Schedule)

	if flags.list {
		client, session, err := newClient(conf, logger)
		if err != nil {
			return err
		}
		defer session.Close()
		return listCalendars(ctx, client, stdout)
	}

	job := func(ctx context.Context) error {
		return convertOnce(ctx, conf, loc, stdout, logger)
	}

	if err := job(ctx); err != nil {
		return err
	}
	if conf.Schedule == "" || flags.once {
		return nil
	}

	return scheduler.New(conf.Schedule, loc, job, logger).Run(ctx)
}

func applyFlags(conf *config.Config, flags flagConfig) {
	switch flags.outDir {
	case "":
	case "-":
		conf.OutputDir = ""
	default:
		conf.OutputDir = flags.outDir
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	if len(flags.calendars) > 0 {
		conf.Calendars = flags.calendars
	}
}

func newClient(conf *config.Config, logger *slog.Logger) (*davclient.Client, *httpclient.Session, error) {
	sessionCfg := conf.Session()
	sessionCfg.Logger = logger
	session, err := httpclient.NewSession(sessionCfg)
	if err != nil {
		return nil, nil, err
	}

	clientCfg := conf.Client()
	clientCfg.Logger = logger
	return davclient.NewClient(session, clientCfg), session, nil
}

func listCalendars(ctx context.Context, client *davclient.Client, w io.Writer) error {
	calendars, err := client.Calendars(ctx)
	if err != nil {
		return err
	}
	for _, cal := range calendars {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", cal.URL(), cal.Name); err != nil {
			return err
		}
	}
	return nil
}

// convertOnce runs the whole pipeline with a fresh session so every scheduled
// run sees current server data
func convertOnce(ctx context.Context, conf *config.Config, loc *time.Location, stdout io.Writer, logger *slog.Logger) error {
	client, session, err := newClient(conf, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	exp := export.New(client, export.Options{
		Location:  loc,
		OutputDir: conf.OutputDir,
		Stdout:    stdout,
		Names:     conf.Calendars,
		Logger:    logger,
	})
	results, err := exp.Run(ctx)
	if err != nil {
		return err
	}

	var warnings int
	for _, res := range results {
		warnings += len(res.Warnings)
	}
	logger.Info("conversion finished", "calendars", len(results), "warnings", warnings)
	return nil
}
