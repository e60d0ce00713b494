package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldav2rem/internal/config"
)

const taxes = "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//EN\nBEGIN:VEVENT\nUID:taxes\nSUMMARY:Taxes\n" +
	"DTSTART;VALUE=DATE:20210415\nBEGIN:VALARM\nACTION:DISPLAY\nTRIGGER:-P2D\nEND:VALARM\nEND:VEVENT\nEND:VCALENDAR\n"

// fakeServer answers the request sequence for one calendar over plain http,
// serving objects only through calendar-query so the per-href path is used
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	multistatus := func(w http.ResponseWriter, inner string) {
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprintf(w, `<?xml version="1.0"?><multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">%s</multistatus>`, inner)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		req := string(body)

		switch {
		case r.Method == "PROPFIND" && r.URL.Path == "/":
			multistatus(w, `<response><href>/7/</href><propstat><prop><current-user-principal>`+
				`<href>/7/principal/</href></current-user-principal></prop></propstat></response>`)
		case r.Method == "PROPFIND" && r.URL.Path == "/7/calendars/":
			multistatus(w, `<response><href>/7/calendars/home/</href><propstat><prop>`+
				`<displayname>Home</displayname></prop></propstat></response>`)
		case r.Method == "REPORT" && strings.Contains(req, "sync-collection"):
			multistatus(w, `<response><href>/7/calendars/home/taxes.ics</href></response>`)
		case r.Method == "REPORT" && strings.Contains(req, "calendar-query") && r.URL.Path == "/7/calendars/home/taxes.ics":
			multistatus(w, `<response><href>/7/calendars/home/taxes.ics</href><propstat><prop>`+
				`<C:calendar-data>`+taxes+`</C:calendar-data></prop></propstat></response>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, srv *httptest.Server, outDir string) string {
	t.Helper()
	for _, key := range []string{config.EnvUsername, config.EnvPassword, config.EnvServer, config.EnvPort} {
		t.Setenv(key, "")
	}

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	content := fmt.Sprintf(`username: alice
password: secret
server: %s
port: %s
insecure: true
fetch_strategy: per-href
fetch_concurrency: 2
timezone: UTC
output_dir: %q
log_level: error
`, u.Hostname(), u.Port(), outDir)

	path := filepath.Join(t.TempDir(), "caldav2rem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{
		"-config", "/etc/c.yaml", "-out", "-", "-once", "-log-level", "debug",
		"-calendar", "Home", "-calendar", "Work",
	})
	require.NoError(t, err)

	assert.Equal(t, "/etc/c.yaml", flags.configPath)
	assert.Equal(t, "-", flags.outDir)
	assert.True(t, flags.once)
	assert.False(t, flags.list)
	assert.Equal(t, "debug", flags.logLevel)
	assert.Equal(t, stringList{"Home", "Work"}, flags.calendars)
	assert.Equal(t, "Home,Work", flags.calendars.String())

	flags, err = parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "caldav2rem.yaml", flags.configPath)

	_, err = parseFlags([]string{"-bogus"})
	assert.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name  string
		flags flagConfig
		check func(t *testing.T, c *config.Config)
	}{
		{
			name:  "no overrides",
			flags: flagConfig{},
			check: func(t *testing.T, c *config.Config) {
				assert.Equal(t, "/var/rem", c.OutputDir)
				assert.Equal(t, "info", c.LogLevel)
				assert.Equal(t, []string{"Home"}, c.Calendars)
			},
		},
		{
			name:  "dash means stdout",
			flags: flagConfig{outDir: "-"},
			check: func(t *testing.T, c *config.Config) { assert.Empty(t, c.OutputDir) },
		},
		{
			name:  "everything overridden",
			flags: flagConfig{outDir: "/tmp/x", logLevel: "debug", calendars: stringList{"Work"}},
			check: func(t *testing.T, c *config.Config) {
				assert.Equal(t, "/tmp/x", c.OutputDir)
				assert.Equal(t, "debug", c.LogLevel)
				assert.Equal(t, []string{"Work"}, c.Calendars)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.DefaultConfig()
			c.OutputDir = "/var/rem"
			c.Calendars = []string{"Home"}
			applyFlags(c, tt.flags)
			tt.check(t, c)
		})
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	for _, key := range []string{config.EnvUsername, config.EnvPassword, config.EnvServer, config.EnvPort} {
		t.Setenv(key, "")
	}
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fetch_strategy: bulk\n"), 0o600))

	err := run([]string{"-config", path}, io.Discard, io.Discard)
	assert.Error(t, err)
}

func TestRun_List(t *testing.T) {
	srv := fakeServer(t)
	path := writeConfig(t, srv, "")

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", path, "-list"}, &out, io.Discard))
	assert.Equal(t, srv.URL+"/7/calendars/home/\tHome\n", out.String())
}

func TestRun_ConvertToStdout(t *testing.T) {
	srv := fakeServer(t)
	path := writeConfig(t, srv, "")

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", path}, &out, io.Discard))
	assert.Equal(t, "# Home\n"+`REM Apr 15 2021 +2 MSG %w %d%s %"Taxes%"%`+"\n", out.String())
}

func TestRun_ConvertToDir(t *testing.T) {
	srv := fakeServer(t)
	dir := t.TempDir()
	path := writeConfig(t, srv, dir)

	var out bytes.Buffer
	require.NoError(t, run([]string{"-config", path, "-once", "-calendar", "Home"}, &out, io.Discard))
	assert.Empty(t, out.String())

	data, err := os.ReadFile(filepath.Join(dir, "Home.rem"))
	require.NoError(t, err)
	assert.Equal(t, `REM Apr 15 2021 +2 MSG %w %d%s %"Taxes%"%`+"\n", string(data))
}

func TestRun_UnknownCalendar(t *testing.T) {
	srv := fakeServer(t)
	path := writeConfig(t, srv, "")

	err := run([]string{"-config", path, "-calendar", "Nope"}, io.Discard, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
}
