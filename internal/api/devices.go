package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hifilink/hifilink/internal/audit"
	"github.com/hifilink/hifilink/internal/device"
	"github.com/hifilink/hifilink/internal/dispatch"
	"github.com/hifilink/hifilink/internal/protocol"
	"github.com/hifilink/hifilink/internal/queue"
)

// handleListDevices returns all devices ordered by name.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("failed to list devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	dev, err := s.registry.GetDevice(r.Context(), name)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, fmt.Sprintf("Unknown device '%s'", name))
			return
		}
		writeInternalError(w, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleUpdateDevice deep-merges the JSON body into the named device,
// creating it when absent. Changing the protocol of an existing device is a
// 409; a new device without a protocol becomes learned IR.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if patch == nil {
		writeBadRequest(w, "body must be a JSON object")
		return
	}

	dev, err := s.registry.MergeDevice(r.Context(), name, patch)
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.logger.Error("failed to update device", "device", name, "error", err)
		}
		writeErr(w, err)
		return
	}

	s.logger.Info("device updated", "device", name, "protocol", string(dev.Protocol))
	s.auditLog(r, audit.ActionDeviceUpdate, name, http.StatusOK, map[string]any{"protocol": string(dev.Protocol)})
	writeJSON(w, http.StatusOK, dev)
}

// handleDeleteDevice removes a device.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := s.registry.DeleteDevice(r.Context(), name); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, fmt.Sprintf("Unknown device '%s'", name))
			return
		}
		writeInternalError(w, "failed to delete device")
		return
	}

	s.logger.Info("device deleted", "device", name)
	s.auditLog(r, audit.ActionDeviceDelete, name, http.StatusNoContent, nil)
	w.WriteHeader(http.StatusNoContent)
}

// sendParams are the options of a send request, read from the query string
// or a JSON body.
type sendParams struct {
	command string
	opts    protocol.Options
	count   int
	sync    bool
}

// requestParams merges query parameters over an optional JSON object body.
type requestParams struct {
	query url.Values
	body  map[string]any
}

func readParams(r *http.Request) (requestParams, error) {
	p := requestParams{query: r.URL.Query()}
	if r.Body == nil || r.Method == http.MethodGet {
		return p, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return p, fmt.Errorf("reading body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&p.body); err != nil {
		return p, errors.New("invalid JSON body")
	}
	return p, nil
}

// get returns the query value for key, else the body value as text.
func (p requestParams) get(key string) string {
	if v := p.query.Get(key); v != "" {
		return v
	}
	switch v := p.body[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// truthy treats any value other than empty, 0 and false as set.
func truthy(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "0", "false", "False", "FALSE":
		return false
	default:
		return true
	}
}

// parseSendParams returns a client-facing message for invalid values.
func parseSendParams(p requestParams) (sendParams, string) {
	sp := sendParams{
		command: strings.TrimSpace(p.get("command")),
		count:   1,
		sync:    truthy(p.get("sync")),
	}
	if raw := p.get("repetitions"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n > protocol.MaxRepetitions {
			return sp, "Invalid 'repetitions' value"
		}
		sp.opts = protocol.WithRepetitions(max(1, n))
	}
	if raw := p.get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || queue.ValidateCount(n) != nil {
			return sp, "Invalid 'count' value"
		}
		sp.count = max(1, n)
	}
	return sp, ""
}

// handleSend transmits a command.
//
// Parameters (query or JSON body):
//   - command: one command, or a comma-separated list
//   - repetitions: frame repetition override, at most protocol.MaxRepetitions
//   - count: how many times to send each command, at most queue.MaxCount
//   - sync: bypass the queue and wait for the transmission
//
// Queued requests answer 202, or 429 when the queue is full. Synchronous
// requests answer with the dispatcher result, or a "multi" summary when more
// than one transmission was made.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	params, err := readParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	sp, msg := parseSendParams(params)
	if msg != "" {
		writeBadRequest(w, msg)
		return
	}
	if sp.command == "" {
		writeBadRequest(w, "Missing 'name' or 'command'")
		return
	}

	if s.queue != nil && !sp.sync {
		status, body := s.enqueue(name, sp.command, sp.count, sp.opts, queue.SourceAPI)
		writeBody(w, status, body)
		return
	}

	ctx := dispatch.WithSource(r.Context(), queue.SourceAPI)

	if queue.IsMulti(sp.command) {
		var results []map[string]any
		for _, cmd := range queue.Expand(name, sp.command, sp.count, 0, sp.opts, queue.SourceAPI) {
			res := s.dispatcher.Send(ctx, name, cmd.Command, sp.opts)
			results = append(results, map[string]any{
				"command": cmd.Command,
				"status":  res.Status,
				"payload": res.Body,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "multi",
			"device":  name,
			"results": results,
		})
		return
	}

	if sp.count > 1 {
		ok := 0
		var last dispatch.Result
		for range sp.count {
			last = s.dispatcher.Send(ctx, name, sp.command, sp.opts)
			if last.OK() {
				ok++
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "multi",
			"device":  name,
			"command": sp.command,
			"count":   sp.count,
			"ok":      ok,
			"last":    map[string]any{"status": last.Status, "payload": last.Body},
		})
		return
	}

	writeResult(w, s.dispatcher.Send(ctx, name, sp.command, sp.opts))
}

// enqueue expands a send request into jobs, queues them and announces the
// new depth on the queue channel.
func (s *Server) enqueue(name, commands string, count int, opts protocol.Options, source string) (int, map[string]any) {
	jobs := queue.Expand(name, commands, count, s.queue.Free(), opts, source)
	if len(jobs) == 0 {
		return http.StatusBadRequest, map[string]any{"error": "Missing 'name' or 'command'"}
	}

	command := ""
	if !queue.IsMulti(commands) {
		command = jobs[0].Command
	}

	status, body := s.queue.Submit(name, command, jobs)
	if status == http.StatusAccepted {
		s.hub.Broadcast(ChannelQueue, map[string]any{
			"event":    "enqueued",
			"device":   name,
			"enqueued": body["enqueued"],
			"pending":  body["pending"],
			"source":   source,
		})
	} else {
		s.logger.Warn("send rejected", "device", name, "status", status, "source", source)
	}
	return status, body
}

// handleSetup learns an IR command from the receiver.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	params, err := readParams(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	command := strings.TrimSpace(params.get("command"))
	if command == "" {
		writeBadRequest(w, "Missing 'name' or 'command'")
		return
	}

	s.logger.Info("learning command", "device", name, "command", command)
	res := s.dispatcher.Setup(r.Context(), name, command)
	details := map[string]any{"command": command}
	if !res.OK() {
		details["error"] = res.Body["error"]
	}
	s.auditLog(r, audit.ActionSetup, name, res.Status, details)
	writeResult(w, res)
}
