// Package export runs the fetch, parse and translate pipeline for a set of
// calendars and writes one remind file per calendar.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyp0633/caldav2rem/davclient"
	"github.com/cyp0633/caldav2rem/ics"
	"github.com/cyp0633/caldav2rem/internal/logging"
	"github.com/cyp0633/caldav2rem/remind"
)

// FileExt is appended to every output file
const FileExt = ".rem"

// Options configures an Exporter
type Options struct {
	// Location is used for floating times on input and for times of day on
	// output.
	Location *time.Location
	// OutputDir receives the files. Empty writes everything to Stdout.
	OutputDir string
	Stdout    io.Writer
	// Names selects calendars by display name. Empty selects all.
	Names  []string
	Logger *slog.Logger
}

// Result describes one converted calendar
type Result struct {
	Name     string
	Path     string
	File     string
	Events   int
	Warnings []error
}

// Exporter converts calendars into remind files
type Exporter struct {
	client     *davclient.Client
	translator *remind.Translator
	opts       Options
	logger     *slog.Logger
}

// New creates an Exporter
func New(client *davclient.Client, opts Options) *Exporter {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Exporter{
		client:     client,
		translator: remind.NewTranslator(remind.Options{Location: opts.Location, Logger: logger}),
		opts:       opts,
		logger:     logger,
	}
}

// Run converts every selected calendar. The first fatal error stops the run;
// translation warnings do not.
func (e *Exporter) Run(ctx context.Context) ([]Result, error) {
	calendars, err := e.selectCalendars(ctx)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	results := make([]Result, 0, len(calendars))
	for _, cal := range calendars {
		res, err := e.convert(ctx, cal, used)
		if err != nil {
			return results, fmt.Errorf("calendar %q: %w", cal.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Exporter) selectCalendars(ctx context.Context) ([]*davclient.Calendar, error) {
	if len(e.opts.Names) == 0 {
		return e.client.Calendars(ctx)
	}

	byName, err := e.client.CalendarsByName(ctx)
	if err != nil {
		return nil, err
	}
	selected := make([]*davclient.Calendar, 0, len(e.opts.Names))
	var missing []string
	for _, name := range e.opts.Names {
		cal, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		selected = append(selected, cal)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("unknown calendars: %s", strings.Join(missing, ", "))
	}
	return selected, nil
}

func (e *Exporter) convert(ctx context.Context, cal *davclient.Calendar, used map[string]bool) (Result, error) {
	res := Result{Name: cal.Name, Path: cal.Path}

	data, err := cal.Data(ctx)
	if err != nil {
		return res, err
	}
	events, err := ics.Parse(data, e.opts.Location)
	if err != nil {
		return res, err
	}
	out, warnings := e.translator.Translate(events)
	res.Events = len(events)
	res.Warnings = warnings

	if e.opts.OutputDir == "" {
		_, err := fmt.Fprintf(e.opts.Stdout, "# %s\n%s", cal.Name, out)
		return res, err
	}

	res.File = filepath.Join(e.opts.OutputDir, FileName(cal, used))
	if err := writeFile(res.File, out); err != nil {
		return res, err
	}

	e.logger.Info("wrote calendar",
		"calendar", cal.Name,
		"file", res.File,
		"events", res.Events,
		"warnings", len(warnings))
	return res, nil
}

// FileName picks an output file name for cal that is not in used yet and
// records it. Calendars sharing a display name are told apart by the last
// segment of their path.
func FileName(cal *davclient.Calendar, used map[string]bool) string {
	base := Sanitize(cal.Name)
	if base == "" {
		base = Sanitize(path.Base(strings.TrimSuffix(cal.Path, "/")))
	}
	if base == "" {
		base = "calendar"
	}

	name := base + FileExt
	if used[name] {
		name = base + "-" + Sanitize(path.Base(strings.TrimSuffix(cal.Path, "/"))) + FileExt
	}
	for i := 2; used[name]; i++ {
		name = fmt.Sprintf("%s-%d%s", base, i, FileExt)
	}
	used[name] = true
	return name
}

// Sanitize turns ASCII punctuation and whitespace other than '-', '_' and '.'
// into '_'. Non-ASCII runes are kept.
func Sanitize(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r > 127:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), ".")
}

// writeFile replaces path atomically via a temp file in the same directory
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".caldav2rem-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(content); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
