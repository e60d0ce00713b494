package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyp0633/caldav2rem/davclient"
	"github.com/cyp0633/caldav2rem/internal/httpclient"
)

const birthday = "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//EN\nBEGIN:VEVENT\nUID:bday\nSUMMARY:Birthday\n" +
	"DTSTART;VALUE=DATE:20200317\nDTEND;VALUE=DATE:20200318\nRRULE:FREQ=YEARLY\nEND:VEVENT\nEND:VCALENDAR\n"

const standup = "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//EN\nBEGIN:VEVENT\nUID:standup\nSUMMARY:Standup\n" +
	"DTSTART:20210104T140000Z\nDTEND:20210104T150000Z\nRRULE:FREQ=WEEKLY;INTERVAL=2;UNTIL=20210301T140000Z\n" +
	"END:VEVENT\nEND:VCALENDAR\n"

const hourly = "BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//EN\nBEGIN:VEVENT\nUID:ping\nSUMMARY:Ping\n" +
	"DTSTART:20210104T140000Z\nRRULE:FREQ=HOURLY\nEND:VEVENT\nEND:VCALENDAR\n"

// fakeCalDAV serves a principal at /42/principal/ with three calendars, two
// of them sharing a display name
func fakeCalDAV(t *testing.T) *httptest.Server {
	t.Helper()

	objects := map[string]map[string]string{
		"/42/calendars/personal/": {"/42/calendars/personal/bday.ics": birthday},
		"/42/calendars/work/":     {"/42/calendars/work/standup.ics": standup},
		"/42/calendars/work-2/":   {"/42/calendars/work-2/ping.ics": hourly},
	}
	names := map[string]string{
		"/42/calendars/personal/": "Personal",
		"/42/calendars/work/":     "Work",
		"/42/calendars/work-2/":   "Work",
	}
	order := []string{"/42/calendars/personal/", "/42/calendars/work/", "/42/calendars/work-2/"}

	multistatus := func(w http.ResponseWriter, inner string) {
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
		w.WriteHeader(http.StatusMultiStatus)
		fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">%s</D:multistatus>`, inner)
	}

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); !ok || user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		req := string(body)

		switch {
		case r.Method == "PROPFIND" && r.URL.Path == "/":
			multistatus(w, `<D:response><D:href>/</D:href><D:propstat><D:prop><D:current-user-principal>`+
				`<D:href>/42/principal/</D:href></D:current-user-principal></D:prop></D:propstat></D:response>`)

		case r.Method == "PROPFIND" && r.URL.Path == "/42/calendars/":
			var b strings.Builder
			b.WriteString(`<D:response><D:href>/42/calendars/</D:href></D:response>`)
			for _, p := range order {
				fmt.Fprintf(&b, `<D:response><D:href>%s</D:href><D:propstat><D:prop>`+
					`<D:displayname>%s</D:displayname></D:prop></D:propstat></D:response>`, p, names[p])
			}
			multistatus(w, b.String())

		case r.Method == "REPORT" && strings.Contains(req, "sync-collection"):
			var b strings.Builder
			for href := range objects[r.URL.Path] {
				fmt.Fprintf(&b, `<D:response><D:href>%s</D:href></D:response>`, href)
			}
			multistatus(w, b.String())

		case r.Method == "REPORT" && strings.Contains(req, "calendar-multiget"):
			var b strings.Builder
			for href, data := range objects[r.URL.Path] {
				if !strings.Contains(req, href) {
					continue
				}
				fmt.Fprintf(&b, `<D:response><D:href>%s</D:href><D:propstat><D:prop>`+
					`<C:calendar-data>%s</C:calendar-data></D:prop></D:propstat></D:response>`, href, data)
			}
			multistatus(w, b.String())

		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server) *davclient.Client {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())

	session, err := httpclient.NewSession(httpclient.Config{
		Username:  "alice",
		Password:  "secret",
		Server:    u.Hostname(),
		Port:      port,
		TLSConfig: &tls.Config{RootCAs: pool},
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)

	return davclient.NewClient(session, nil)
}

func TestExporter_RunToFiles(t *testing.T) {
	srv := fakeCalDAV(t)
	dir := t.TempDir()

	exp := New(newClient(t, srv), Options{Location: time.UTC, OutputDir: dir})
	results, err := exp.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, filepath.Join(dir, "Personal.rem"), results[0].File)
	assert.Equal(t, filepath.Join(dir, "Work.rem"), results[1].File)
	assert.Equal(t, filepath.Join(dir, "Work-work-2.rem"), results[2].File)
	assert.Len(t, results[2].Warnings, 1)

	personal, err := os.ReadFile(results[0].File)
	require.NoError(t, err)
	assert.Equal(t, `REM Mar 17 MSG %w %d%s %"Birthday%"%`+"\n", string(personal))

	work, err := os.ReadFile(results[1].File)
	require.NoError(t, err)
	assert.Equal(t,
		`REM Jan 4 2021 UNTIL Mar 1 2021 *14 AT 14:00 DURATION 1:0 MSG %w %d%s %2 %"Standup%"%`+"\n",
		string(work))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "no temp files left behind")
}

func TestExporter_RunToStdout(t *testing.T) {
	srv := fakeCalDAV(t)
	var out bytes.Buffer

	exp := New(newClient(t, srv), Options{Location: time.UTC, Stdout: &out, Names: []string{"Personal"}})
	results, err := exp.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].File)

	assert.Equal(t, "# Personal\n"+`REM Mar 17 MSG %w %d%s %"Birthday%"%`+"\n", out.String())
}

func TestExporter_SelectByNameLastWins(t *testing.T) {
	srv := fakeCalDAV(t)
	var out bytes.Buffer

	exp := New(newClient(t, srv), Options{Location: time.UTC, Stdout: &out, Names: []string{"Work"}})
	results, err := exp.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "/42/calendars/work-2/", results[0].Path)
}

func TestExporter_UnknownCalendar(t *testing.T) {
	srv := fakeCalDAV(t)

	exp := New(newClient(t, srv), Options{Names: []string{"Personal", "Nope"}})
	_, err := exp.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
}

func TestFileName(t *testing.T) {
	used := map[string]bool{}

	assert.Equal(t, "Home.rem", FileName(&davclient.Calendar{Name: "Home", Path: "/1/calendars/home/"}, used))
	assert.Equal(t, "Home-abc.rem", FileName(&davclient.Calendar{Name: "Home", Path: "/1/calendars/abc/"}, used))
	assert.Equal(t, "Home-2.rem", FileName(&davclient.Calendar{Name: "Home", Path: "/1/calendars/abc/"}, used))
	assert.Equal(t, "x1.rem", FileName(&davclient.Calendar{Name: "", Path: "/1/calendars/x1/"}, used))
	assert.Equal(t, "Family_Trips.rem", FileName(&davclient.Calendar{Name: "Family/Trips", Path: "/1/c/f/"}, used))
}

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"Work":           "Work",
		" Work ":         "Work",
		"a/b\\c":         "a_b_c",
		"Familie Müller": "Familie_Müller",
		"..hidden":       "hidden",
		"v1.2":           "v1.2",
	}
	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), in)
	}
}
