package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/JamesDodds/ipmi-api-gateway/internal/dispatch"
	"github.com/JamesDodds/ipmi-api-gateway/internal/executor"
	"github.com/JamesDodds/ipmi-api-gateway/internal/history"
)

type singleResponse struct {
	RequestID string `json:"request_id"`
	dispatch.Outcome
}

type fleetResponse struct {
	RequestID string `json:"request_id"`
	dispatch.AggregateResult
}

// commandRequest carries the optional target selector. The server id
// may arrive as a query parameter or in the JSON body; giving both
// with different values is rejected rather than silently picking one.
type commandRequest struct {
	ServerID string `json:"server_id"`
	Force    bool   `json:"force"`
}

func decodeCommandRequest(r *http.Request) (commandRequest, error) {
	var req commandRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if q := r.URL.Query().Get("server_id"); q != "" {
		if req.ServerID != "" && req.ServerID != q {
			return req, errAmbiguousServerID
		}
		req.ServerID = q
	}
	return req, nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"targets": s.registry.Size(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.Health})
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	type serverInfo struct {
		Name     string `json:"name"`
		Address  string `json:"address"`
		Username string `json:"username"`
	}
	descriptors := s.registry.All()
	servers := make([]serverInfo, 0, len(descriptors))
	for _, d := range descriptors {
		servers = append(servers, serverInfo{Name: d.Name, Address: d.Address, Username: d.Username})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(servers),
		"servers": servers,
	})
}

func (s *Server) handleServersStatus(w http.ResponseWriter, r *http.Request) {
	s.runFleet(w, r, executor.Command{Kind: executor.PowerStatus})
}

func (s *Server) handlePowerOn(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.PowerOn})
}

func (s *Server) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCommandRequest(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.runSingleFor(w, r, req, executor.Command{Kind: executor.PowerOff, Force: req.Force})
}

func (s *Server) handlePowerReset(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.PowerReset})
}

func (s *Server) handlePowerStatus(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.PowerStatus})
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.Sensors})
}

// handleSystemInfo gathers FRU and BMC inventory in two commands
// against the same target and reports both under one request id.
func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCommandRequest(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	t, err := s.resolver.Resolve(req.ServerID)
	if err != nil {
		s.writeResolutionError(w, r, err)
		return
	}

	fruCmd := executor.Command{Kind: executor.FRUInfo}
	bmcCmd := executor.Command{Kind: executor.BMCInfo}
	fru := s.dispatcher.One(r.Context(), t, fruCmd)
	s.record(requestID(r.Context()), fruCmd, fru)
	bmc := s.dispatcher.One(r.Context(), t, bmcCmd)
	s.record(requestID(r.Context()), bmcCmd, bmc)

	status := fru.Status
	if status == dispatch.StatusSuccess {
		status = bmc.Status
	}
	s.writeJSON(w, outcomeStatus(status), map[string]any{
		"request_id": requestID(r.Context()),
		"target":     t.Name,
		"address":    t.Address,
		"status":     status,
		"fru":        fru,
		"bmc":        bmc,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	req, err := decodeCommandRequest(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	t, err := s.resolver.Resolve(req.ServerID)
	if err != nil {
		s.writeResolutionError(w, r, err)
		return
	}

	cmd := executor.Command{Kind: executor.EventLog}
	out := s.dispatcher.One(r.Context(), t, cmd)
	s.record(requestID(r.Context()), cmd, out)
	if len(out.Payload.Events) > limit {
		out.Payload.Events = out.Payload.Events[:limit]
	}
	s.writeJSON(w, outcomeStatus(out.Status), map[string]any{
		"request_id":  requestID(r.Context()),
		"target":      out.Target,
		"address":     out.Address,
		"status":      out.Status,
		"events":      out.Payload.Events,
		"event_count": len(out.Payload.Events),
		"limit":       limit,
		"message":     out.Message,
	})
}

func (s *Server) handleEventsClear(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.EventLogClear})
}

func (s *Server) handleEventsInfo(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.EventLogInfo})
}

func (s *Server) handleBootDeviceGet(w http.ResponseWriter, r *http.Request) {
	s.runSingle(w, r, executor.Command{Kind: executor.BootDeviceGet})
}

type bootDeviceRequest struct {
	commandRequest
	Device     string `json:"device"`
	Persistent bool   `json:"persistent"`
}

func (s *Server) handleBootDeviceSet(w http.ResponseWriter, r *http.Request) {
	var req bootDeviceRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
			return
		}
	}
	if q := r.URL.Query().Get("server_id"); q != "" {
		if req.ServerID != "" && req.ServerID != q {
			s.writeError(w, r, http.StatusBadRequest, errAmbiguousServerID)
			return
		}
		req.ServerID = q
	}
	if req.Device == "" {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing required parameter: device"))
		return
	}
	device := strings.ToLower(req.Device)
	if !slices.Contains(executor.BootDevices, device) {
		s.writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("invalid boot device %q, valid options: %s", req.Device, strings.Join(executor.BootDevices, ", ")))
		return
	}

	s.runSingleFor(w, r, req.commandRequest, executor.Command{
		Kind:       executor.BootDeviceSet,
		BootDevice: device,
		Persistent: req.Persistent,
	})
}

func (s *Server) handleBulkPowerOn(w http.ResponseWriter, r *http.Request) {
	s.runFleet(w, r, executor.Command{Kind: executor.PowerOn})
}

func (s *Server) handleBulkPowerOff(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCommandRequest(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.runFleet(w, r, executor.Command{Kind: executor.PowerOff, Force: req.Force})
}

func (s *Server) handleBulkSensors(w http.ResponseWriter, r *http.Request) {
	s.runFleet(w, r, executor.Command{Kind: executor.Sensors})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, fmt.Errorf("history journal is not enabled"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	var entries []history.Entry
	var err error
	if name := r.URL.Query().Get("server_id"); name != "" {
		entries, err = s.store.ListByTarget(limit, name)
	} else {
		entries, err = s.store.ListRecent(limit)
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) runSingle(w http.ResponseWriter, r *http.Request, cmd executor.Command) {
	req, err := decodeCommandRequest(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	s.runSingleFor(w, r, req, cmd)
}

func (s *Server) runSingleFor(w http.ResponseWriter, r *http.Request, req commandRequest, cmd executor.Command) {
	t, err := s.resolver.Resolve(req.ServerID)
	if err != nil {
		s.writeResolutionError(w, r, err)
		return
	}

	out := s.dispatcher.One(r.Context(), t, cmd)
	s.record(requestID(r.Context()), cmd, out)
	s.writeJSON(w, outcomeStatus(out.Status), singleResponse{
		RequestID: requestID(r.Context()),
		Outcome:   out,
	})
}

func (s *Server) runFleet(w http.ResponseWriter, r *http.Request, cmd executor.Command) {
	targets, err := s.resolver.ResolveAll()
	if err != nil {
		s.writeResolutionError(w, r, err)
		return
	}

	outcomes := s.dispatcher.Fleet(r.Context(), targets, cmd)
	for _, out := range outcomes {
		s.record(requestID(r.Context()), cmd, out)
	}
	s.writeJSON(w, http.StatusOK, fleetResponse{
		RequestID:       requestID(r.Context()),
		AggregateResult: dispatch.Aggregate(outcomes, s.registry.Names()),
	})
}

func (s *Server) record(reqID string, cmd executor.Command, out dispatch.Outcome) {
	if s.journal == nil {
		return
	}
	// A canceled command says the caller disconnected, not that the
	// BMC misbehaved; keep it out of the journal.
	if out.Status == dispatch.StatusCanceled {
		return
	}
	s.journal.Write(history.Entry{
		RequestID:  reqID,
		Target:     out.Target,
		Address:    out.Address,
		Command:    string(cmd.Kind),
		Status:     string(out.Status),
		Message:    out.Message,
		StartedAt:  time.Now().Add(-out.Duration),
		DurationMs: out.Duration.Milliseconds(),
	})
}
