package cli

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/toda-franchise/internal/config"
	"github.com/turtacn/toda-franchise/internal/domain/calendar"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	calls   []string
	err     error
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	if f.err == nil {
		f.version = 3
	}
	return f.err
}

func (f *fakeMigrator) Down(steps int) error {
	f.calls = append(f.calls, "down")
	f.version -= uint(steps)
	return f.err
}

func (f *fakeMigrator) Status() (uint, bool, error) { return f.version, f.dirty, nil }

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.version, f.dirty = uint(v), false
	return f.err
}

func (f *fakeMigrator) Files() ([]string, error) {
	return []string{"000001_init.up.sql", "000001_init.down.sql"}, nil
}

type cliHarness struct {
	migrator *fakeMigrator
	clock    *calendar.FixedClock
}

func newHarness() *cliHarness {
	cal := calendar.MustLoad(calendar.DefaultZone)
	return &cliHarness{
		migrator: &fakeMigrator{version: 1},
		clock:    calendar.NewFixedClock(cal.Date(2024, 1, 20)),
	}
}

func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommandWithDeps(Dependencies{
		NewMigrator: func(*config.Config) Migrator { return h.migrator },
		Clock:       h.clock,
	})
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ---------------------------------------------------------------------------
// Root
// ---------------------------------------------------------------------------

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "franchisectl", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"migrate", "status", "rates", "transition", "pay", "window", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	for _, flag := range []string{"config", "output", "server", "member-id", "role", "timeout", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
}

func TestRoot_RejectsUnknownOutputFormat(t *testing.T) {
	_, err := newHarness().run(t, "-o", "yaml", "version")
	assert.EqualError(t, err, `unsupported output format "yaml"`)
}

func TestRoot_MissingConfigFile(t *testing.T) {
	_, err := newHarness().run(t, "--config", "/nonexistent/franchise.yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config initialization failed")
}

func TestVersionCmd(t *testing.T) {
	Version, GitCommit = "1.2.3", "abc123"
	t.Cleanup(func() { Version, GitCommit = "dev", "unknown" })

	out, err := newHarness().run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "franchisectl 1.2.3 (commit abc123")

	out, err = newHarness().run(t, "-o", "json", "version")
	require.NoError(t, err)
	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestFormatTable(t *testing.T) {
	got := FormatTable([]string{"ID", "STATUS"}, [][]string{{"1", "approved"}, {"12"}})
	want := "ID  STATUS  \n--  --------\n1   approved\n12          \n"
	assert.Equal(t, want, got)
	assert.Empty(t, FormatTable(nil, nil))
}

func TestPrintResult_WithoutContextFallsBackToJSON(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	require.NoError(t, PrintResult(cmd, map[string]int{"id": 1}))
	assert.JSONEq(t, `{"id":1}`, out.String())
}

// ---------------------------------------------------------------------------
// migrate
// ---------------------------------------------------------------------------

func TestMigrateCmd(t *testing.T) {
	h := newHarness()

	out, err := h.run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Equal(t, "version 3 (clean), 2 migration file(s) embedded\n", out)

	out, err = h.run(t, "-o", "table", "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "VERSION  DIRTY  FILES")
	assert.Contains(t, out, "1        false  2")

	_, err = h.run(t, "migrate", "down", "--steps", "0")
	assert.EqualError(t, err, "--steps must be at least 1, got 0")

	h.migrator.dirty = true
	out, err = h.run(t, "migrate", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "(dirty)")

	out, err = h.run(t, "-o", "json", "migrate", "force", "1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1,"dirty":false,"files":["000001_init.up.sql","000001_init.down.sql"]}`, out)

	_, err = h.run(t, "migrate", "force", "-1")
	assert.Error(t, err)

	assert.Equal(t, []string{"up", "down", "force"}, h.migrator.calls)
}

func TestMigrateCmd_PropagatesErrors(t *testing.T) {
	h := newHarness()
	h.migrator.err = stderrors.New("connection refused")
	_, err := h.run(t, "migrate", "up")
	assert.EqualError(t, err, "connection refused")
}

// ---------------------------------------------------------------------------
// API commands
// ---------------------------------------------------------------------------

type apiCall struct {
	method, path, role, member, body string
}

func newAPIStub(t *testing.T, calls *[]apiCall, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*calls = append(*calls, apiCall{r.Method, r.URL.Path, r.Header.Get("X-Member-Role"), r.Header.Get("X-Member-ID"), string(body)})
		resp, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"FRN_001","message":"franchise not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCmd(t *testing.T) {
	var calls []apiCall
	srv := newAPIStub(t, &calls, map[string]string{
		"GET /api/v1/franchises/4/status": `{"is_expired":true,"can_renew":true,"effective_status":"approved","effective_source":"franchise","expiry_date":"2024-01-10T00:00:00+08:00"}`,
	})

	out, err := newHarness().run(t, "--server", srv.URL, "--member-id", "9", "--role", "treasurer", "status", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "franchise 4: approved (from franchise)")
	assert.Contains(t, out, "expiry:    2024-01-10")
	assert.Contains(t, out, "can renew: true")

	require.Len(t, calls, 1)
	assert.Equal(t, "treasurer", calls[0].role)
	assert.Equal(t, "9", calls[0].member)

	out, err = newHarness().run(t, "--server", srv.URL, "-o", "json", "status", "4")
	require.NoError(t, err)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, float64(4), report["franchise_id"])
	assert.Equal(t, true, report["can_renew"])
}

func TestStatusCmd_Errors(t *testing.T) {
	var calls []apiCall
	srv := newAPIStub(t, &calls, nil)

	_, err := newHarness().run(t, "--server", srv.URL, "status", "abc")
	assert.EqualError(t, err, `invalid id "abc"`)

	_, err = newHarness().run(t, "--server", srv.URL, "status", "77")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FRN_001")

	_, err = newHarness().run(t, "--server", srv.URL, "status")
	assert.Error(t, err)
}

func TestRatesCmd(t *testing.T) {
	var calls []apiCall
	srv := newAPIStub(t, &calls, map[string]string{
		"GET /api/v1/franchises/4/rates": `{"franchise_id":4,
			"registration":{"id":1,"fee_type":"registration","fees":[{"name":"Filing fee","amount":50000}]},
			"renewal":{"id":2,"fee_type":"renewal","fees":[{"name":"Renewal fee","amount":30000},{"name":"Late 1","amount":10050,"is_penalty":true,"activate_penalty_after_expiry_days":5,"is_penalty_active":true},{"name":"Late 2","amount":20000,"is_penalty":true,"activate_penalty_after_expiry_days":30}]},
			"registration_missing":false,"renewal_missing":false,"penalty_days":10,
			"registration_total":"500.00","renewal_total":"400.50"}`,
	})

	out, err := newHarness().run(t, "--server", srv.URL, "-o", "table", "rates", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "FEE TYPE")
	assert.Contains(t, out, "Filing fee")
	assert.Contains(t, out, "100.50")
	assert.Contains(t, out, "penalty (active)")
	assert.Contains(t, out, "penalty after 30 day(s)")
	assert.Contains(t, out, "400.50")

	out, err = newHarness().run(t, "--server", srv.URL, "rates", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "registration total: 500.00")
	assert.Contains(t, out, "renewal total:      400.50")
}

func TestTransitionCmd(t *testing.T) {
	var calls []apiCall
	srv := newAPIStub(t, &calls, map[string]string{
		"PATCH /api/v1/franchise-renewals/8/approval-status": `{"kind":"renewal","id":8,"franchise_id":4,"plate_no":"ABC 123","from":"validated","to":"rejected","occurred_at":"2024-01-20T09:00:00+08:00"}`,
	})

	out, err := newHarness().run(t, "--server", srv.URL, "transition", "renewal", "8",
		"--status", "Rejected", "--remark", "vehicle_cr_img_url: blurred", "--remark", "come back with a clear copy")
	require.NoError(t, err)
	assert.Equal(t, "renewal 8 (plate ABC 123): validated -> rejected\n", out)

	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"status":"rejected","remarks":[{"field_name":"vehicle_cr_img_url","remark":"blurred"},{"remark":"come back with a clear copy"}]}`, calls[0].body)

	_, err = newHarness().run(t, "--server", srv.URL, "transition", "permit", "8")
	assert.EqualError(t, err, `invalid kind "permit" (must be franchise or renewal)`)
}

func TestPayCmd(t *testing.T) {
	var calls []apiCall
	srv := newAPIStub(t, &calls, map[string]string{
		"PATCH /api/v1/franchises/4/payment": `{"kind":"franchise","id":4,"franchise_id":4,"plate_no":"ABC 123","from":"validated","to":"paid","occurred_at":"2024-01-20T09:00:00+08:00"}`,
	})

	out, err := newHarness().run(t, "--server", srv.URL, "--role", "treasurer", "pay", "franchise", "4", "--or-no", " OR-991 ")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "validated -> paid"))
	require.Len(t, calls, 1)
	assert.JSONEq(t, `{"or_no":"OR-991"}`, calls[0].body)

	_, err = newHarness().run(t, "--server", srv.URL, "pay", "franchise", "4")
	assert.EqualError(t, err, "--or-no is required")
}

func TestParseRemark(t *testing.T) {
	tests := []struct {
		in   string
		want string
		fld  string
	}{
		{"plate_no: mismatch", "mismatch", "plate_no"},
		{"see me at the office: today", "see me at the office: today", ""},
		{"  no field  ", "no field", ""},
	}
	for _, tt := range tests {
		r := parseRemark(tt.in)
		assert.Equal(t, tt.want, r.Remark, tt.in)
		assert.Equal(t, tt.fld, r.FieldName, tt.in)
	}
}

// ---------------------------------------------------------------------------
// window
// ---------------------------------------------------------------------------

func TestWindowCmd(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"inside after expiry", []string{"--expiry", "2024-01-10"}, "in window: true"},
		{"day the window closes", []string{"--expiry", "2024-01-10", "--at", "2024-01-25"}, "in window: true"},
		{"day after it closes", []string{"--expiry", "2024-01-10", "--at", "2024-01-26"}, "in window: false"},
		{"day it opens", []string{"--expiry", "2024-02-19", "--at", "2024-01-20"}, "in window: true"},
		{"narrowed by flag", []string{"--expiry", "2024-01-10", "--after", "5"}, "in window: false"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newHarness().run(t, append([]string{"window"}, tt.args...)...)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestWindowCmd_JSON(t *testing.T) {
	out, err := newHarness().run(t, "-o", "json", "window", "--expiry", "2024-01-10")
	require.NoError(t, err)

	var r WindowReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, WindowReport{
		Expiry:         "2024-01-10",
		At:             "2024-01-20",
		Opens:          "2023-12-11",
		Closes:         "2024-01-25",
		InWindow:       true,
		Expired:        true,
		DaysPastExpiry: 10,
	}, r)
}

func TestWindowCmd_InvalidInput(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "window")
	assert.Error(t, err)

	_, err = h.run(t, "window", "--expiry", "10/01/2024")
	assert.EqualError(t, err, `invalid --expiry "10/01/2024" (want YYYY-MM-DD)`)

	_, err = h.run(t, "window", "--expiry", "2024-01-10", "--before", "-1")
	assert.EqualError(t, err, "window bounds must not be negative")
}
