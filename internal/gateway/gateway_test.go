package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JamesDodds/ipmi-api-gateway/internal/dispatch"
	"github.com/JamesDodds/ipmi-api-gateway/internal/executor"
	"github.com/JamesDodds/ipmi-api-gateway/internal/history"
	"github.com/JamesDodds/ipmi-api-gateway/internal/target"
)

type scriptedExecutor struct {
	mu       sync.Mutex
	errs     map[string]error
	hangs    map[string]bool
	commands []executor.Command
}

func (f *scriptedExecutor) Execute(ctx context.Context, d target.Descriptor, cmd executor.Command) (executor.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	if f.hangs != nil && f.hangs[d.Name] {
		<-ctx.Done()
		return executor.Result{}, ctx.Err()
	}
	if f.errs != nil {
		if err := f.errs[d.Name]; err != nil {
			return executor.Result{}, err
		}
	}
	switch cmd.Kind {
	case executor.Sensors:
		return executor.Result{Sensors: []executor.SensorReading{{Name: "CPU Temp", Value: "45.000", Unit: "degrees C", Status: "ok"}}}, nil
	case executor.EventLog:
		return executor.Result{Events: []executor.EventRecord{
			{ID: "1", Timestamp: "08/25/2026 10:00:00", Sensor: "Temp #0x30", Event: "Upper Critical going high"},
			{ID: "2", Timestamp: "08/25/2026 10:05:00", Sensor: "Fan #0x41", Event: "Lower Critical going low"},
		}}, nil
	case executor.BootDeviceGet:
		return executor.Result{Output: "Boot Device Selector : Force PXE", BootInfo: map[string]string{"boot_device_selector": "Force PXE"}}, nil
	case executor.FRUInfo:
		return executor.Result{Output: "Product Name : PowerEdge R640"}, nil
	case executor.BMCInfo:
		return executor.Result{Output: "Firmware Revision : 2.63"}, nil
	default:
		return executor.Result{Output: "Chassis Power is on", PowerState: "on"}, nil
	}
}

type serverOptions struct {
	targets []target.Descriptor
	exec    executor.Executor
	timeout time.Duration
	store   *history.Store
	journal *history.Writer
}

func newTestServer(t *testing.T, opts serverOptions) *Server {
	t.Helper()
	if opts.exec == nil {
		opts.exec = &scriptedExecutor{}
	}
	if opts.timeout == 0 {
		opts.timeout = time.Second
	}
	registry, err := target.NewRegistry(opts.targets)
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	dispatcher := dispatch.New(opts.exec, opts.timeout, 4, logger)
	return NewServer(registry, target.NewResolver(registry), dispatcher, opts.journal, opts.store, logger)
}

func twoTargets() []target.Descriptor {
	return []target.Descriptor{
		{Name: "a", Address: "10.0.0.1", Username: "admin", Password: "secret-a"},
		{Name: "b", Address: "10.0.0.2", Username: "admin", Password: "secret-b"},
	}
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLiveness(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["status"])
	require.EqualValues(t, 2, body["targets"])
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServersOmitsPasswords(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/servers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret-a")
	require.NotContains(t, rec.Body.String(), "secret-b")

	body := decodeBody(t, rec)
	require.EqualValues(t, 2, body["count"])
}

func TestPowerOnSingleTarget(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on?server_id=a", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "success", body["status"])
	require.Equal(t, "a", body["target"])
	require.NotEmpty(t, body["request_id"])
}

func TestServerIDFromBody(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on", `{"server_id":"b"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "b", decodeBody(t, rec)["target"])
}

func TestConflictingServerIDSources(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on?server_id=a", `{"server_id":"b"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, decodeBody(t, rec)["error"], "different values")
}

func TestAgreeingServerIDSources(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on?server_id=a", `{"server_id":"a"}`)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSoleTargetNeedsNoServerID(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()[:1]})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/power/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "a", body["target"])
	require.Equal(t, "on", body["payload"].(map[string]any)["power_state"])
}

func TestResolutionErrorMapping(t *testing.T) {
	t.Run("unknown target is 404", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})
		rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on?server_id=zz", "")
		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing id against multiple targets is 400", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})
		rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty registry is 503", func(t *testing.T) {
		s := newTestServer(t, serverOptions{})
		rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestOutcomeStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unreachable is 502", fmt.Errorf("%w: no route to host", executor.ErrConnectFailed), http.StatusBadGateway},
		{"unauthenticated is 502", fmt.Errorf("%w: RAKP 2 message", executor.ErrAuthRejected), http.StatusBadGateway},
		{"failure is 500", fmt.Errorf("%w: bad response", executor.ErrProtocol), http.StatusInternalServerError},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newTestServer(t, serverOptions{
				targets: twoTargets(),
				exec:    &scriptedExecutor{errs: map[string]error{"a": c.err}},
			})
			rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on?server_id=a", "")
			require.Equal(t, c.want, rec.Code)
		})
	}

	t.Run("timeout is 504", func(t *testing.T) {
		s := newTestServer(t, serverOptions{
			targets: twoTargets(),
			exec:    &scriptedExecutor{hangs: map[string]bool{"a": true}},
			timeout: 20 * time.Millisecond,
		})
		rec := doRequest(t, s, http.MethodGet, "/api/v1/power/status?server_id=a", "")
		require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})
}

func TestBulkPowerOnIsAlways200(t *testing.T) {
	s := newTestServer(t, serverOptions{
		targets: twoTargets(),
		exec: &scriptedExecutor{errs: map[string]error{
			"b": fmt.Errorf("%w: no route to host", executor.ErrConnectFailed),
		}},
	})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/bulk/power/on", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "partial-failure", body["overall"])
	require.EqualValues(t, 2, body["total"])
	require.EqualValues(t, 1, body["successful"])
	require.EqualValues(t, 1, body["failed"])

	outcomes := body["outcomes"].([]any)
	require.Len(t, outcomes, 2)
	require.Equal(t, "a", outcomes[0].(map[string]any)["target"])
	require.Equal(t, "b", outcomes[1].(map[string]any)["target"])
}

func TestBulkSensors(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/bulk/sensors", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "all-success", body["overall"])

	first := body["outcomes"].([]any)[0].(map[string]any)
	sensors := first["payload"].(map[string]any)["sensors"].([]any)
	require.Len(t, sensors, 1)
}

func TestServersStatusFleet(t *testing.T) {
	s := newTestServer(t, serverOptions{targets: twoTargets()})

	rec := doRequest(t, s, http.MethodGet, "/api/v1/servers/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "all-success", decodeBody(t, rec)["overall"])
}

func TestHistoryEndpoint(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for _, e := range []history.Entry{
		{RequestID: "r1", Target: "a", Command: "power-on", Status: "success"},
		{RequestID: "r2", Target: "b", Command: "power-on", Status: "unreachable"},
	} {
		require.NoError(t, store.Insert(&e))
	}

	s := newTestServer(t, serverOptions{targets: twoTargets(), store: store})

	t.Run("recent entries", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/history", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.EqualValues(t, 2, decodeBody(t, rec)["count"])
	})

	t.Run("filtered by target", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/history?server_id=a", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.EqualValues(t, 1, decodeBody(t, rec)["count"])
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := doRequest(t, s, http.MethodGet, "/api/v1/history?limit=nope", "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSystemInfo(t *testing.T) {
	t.Run("combines fru and bmc inventory", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/system/info?server_id=a", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.Equal(t, "success", body["status"])
		require.Contains(t, body["fru"].(map[string]any)["payload"].(map[string]any)["output"], "PowerEdge")
		require.Contains(t, body["bmc"].(map[string]any)["payload"].(map[string]any)["output"], "Firmware Revision")
	})

	t.Run("reports the failing half", func(t *testing.T) {
		s := newTestServer(t, serverOptions{
			targets: twoTargets(),
			exec:    &scriptedExecutor{errs: map[string]error{"a": fmt.Errorf("%w: no route to host", executor.ErrConnectFailed)}},
		})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/system/info?server_id=a", "")

		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Equal(t, "unreachable", decodeBody(t, rec)["status"])
	})
}

func TestEventLog(t *testing.T) {
	t.Run("lists events", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/system/events?server_id=a", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.EqualValues(t, 2, body["event_count"])
		first := body["events"].([]any)[0].(map[string]any)
		require.Equal(t, "1", first["id"])
		require.Equal(t, "Temp #0x30", first["sensor"])
	})

	t.Run("truncates to the limit", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/system/events?server_id=a&limit=1", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		require.EqualValues(t, 1, body["event_count"])
		require.Len(t, body["events"].([]any), 1)
	})

	t.Run("rejects an invalid limit", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/system/events?server_id=a&limit=-3", "")

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("clears the log", func(t *testing.T) {
		exec := &scriptedExecutor{}
		s := newTestServer(t, serverOptions{targets: twoTargets(), exec: exec})

		rec := doRequest(t, s, http.MethodDelete, "/api/v1/system/events?server_id=a", "")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, executor.EventLogClear, exec.commands[0].Kind)
	})

	t.Run("reports log statistics", func(t *testing.T) {
		exec := &scriptedExecutor{}
		s := newTestServer(t, serverOptions{targets: twoTargets(), exec: exec})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/system/events/info?server_id=a", "")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, executor.EventLogInfo, exec.commands[0].Kind)
	})
}

func TestBootDevice(t *testing.T) {
	t.Run("reports the current device", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodGet, "/api/v1/boot/device?server_id=a", "")

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		payload := body["payload"].(map[string]any)
		require.Equal(t, "Force PXE", payload["boot_info"].(map[string]any)["boot_device_selector"])
	})

	t.Run("sets the device", func(t *testing.T) {
		exec := &scriptedExecutor{}
		s := newTestServer(t, serverOptions{targets: twoTargets(), exec: exec})

		rec := doRequest(t, s, http.MethodPost, "/api/v1/boot/device?server_id=a", `{"device":"PXE","persistent":true}`)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, exec.commands, 1)
		require.Equal(t, executor.BootDeviceSet, exec.commands[0].Kind)
		require.Equal(t, "pxe", exec.commands[0].BootDevice)
		require.True(t, exec.commands[0].Persistent)
	})

	t.Run("rejects an unknown device", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodPost, "/api/v1/boot/device?server_id=a", `{"device":"floppy8"}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Contains(t, decodeBody(t, rec)["error"], "invalid boot device")
	})

	t.Run("rejects a missing device", func(t *testing.T) {
		s := newTestServer(t, serverOptions{targets: twoTargets()})

		rec := doRequest(t, s, http.MethodPost, "/api/v1/boot/device?server_id=a", `{}`)

		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCanceledOutcomesAreNotJournaled(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	journal := history.NewWriter(store, 10*time.Millisecond, 20, slog.New(slog.DiscardHandler))

	s := newTestServer(t, serverOptions{targets: twoTargets(), store: store, journal: journal})

	s.record("req-1", executor.Command{Kind: executor.PowerOn}, dispatch.Outcome{
		Target: "a", Address: "10.0.0.1", Status: dispatch.StatusCanceled,
	})
	s.record("req-1", executor.Command{Kind: executor.PowerOn}, dispatch.Outcome{
		Target: "b", Address: "10.0.0.2", Status: dispatch.StatusSuccess,
	})
	journal.Close()

	entries, err := store.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b", entries[0].Target)
}

func TestCommandsAreJournaled(t *testing.T) {
	store, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	journal := history.NewWriter(store, 10*time.Millisecond, 20, slog.New(slog.DiscardHandler))
	t.Cleanup(journal.Close)

	s := newTestServer(t, serverOptions{targets: twoTargets(), store: store, journal: journal})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/power/on?server_id=a", "")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		entries, err := store.ListRecent(10)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := store.ListRecent(10)
	require.NoError(t, err)
	require.Equal(t, "a", entries[0].Target)
	require.Equal(t, "power-on", entries[0].Command)
	require.Equal(t, "success", entries[0].Status)
	require.NotEmpty(t, entries[0].RequestID)
}
