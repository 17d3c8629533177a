// Package host speaks newline-delimited JSON-RPC 2.0 with the collaborator:
// requests arrive on stdin, responses and event notifications leave on stdout.
package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/SteelMorgan/logstream/internal/domain"
	"github.com/SteelMorgan/logstream/internal/events"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeEngineError    = -32000
)

const maxLineSize = 1 << 20

// Engine is the set of operations exposed to the collaborator
type Engine interface {
	SetCurrentFile(path string) error
	StartFileMonitoring(path string) error
	StopFileMonitoring()
	StartFileLoading(path string, reloadAll bool) error
	CancelFileLoading() bool
	IsLoading() bool
	GetCurrentFile() (string, bool)
}

// Request represents a JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result"`
}

type errorResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Error   *Error `json:"error"`
}

// Error represents a JSON-RPC error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorData is attached to engine errors
type ErrorData struct {
	Kind string `json:"kind"`
}

type notification struct {
	JSONRPC string       `json:"jsonrpc"`
	Method  string       `json:"method"`
	Params  events.Event `json:"params"`
}

type pathParams struct {
	Path string `json:"path"`
}

type loadParams struct {
	Path      string `json:"path"`
	ReloadAll bool   `json:"reload_all"`
}

// Protocol serves requests and doubles as the event sink.
// Every write to out is serialised.
type Protocol struct {
	in  *bufio.Scanner
	out io.Writer
	mu  sync.Mutex
}

// NewProtocol creates a protocol reading requests from in and writing to out
func NewProtocol(in io.Reader, out io.Writer) *Protocol {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Protocol{in: sc, out: out}
}

// Emit implements events.Sink by sending an "event" notification
func (p *Protocol) Emit(ev events.Event) {
	if err := p.writeJSON(notification{JSONRPC: "2.0", Method: "event", Params: ev}); err != nil {
		log.Error().Err(err).Str("event", ev.Name).Msg("Failed to write event")
	}
}

// Serve handles requests until in is exhausted or ctx is done.
// A read blocked on in does not delay the return on ctx.
func (p *Protocol) Serve(ctx context.Context, engine Engine) error {
	log.Info().Msg("Stdio protocol server starting")

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for p.in.Scan() {
			line := append([]byte(nil), p.in.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- p.in.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := <-scanErr; err != nil {
					return fmt.Errorf("stdin scanner error: %w", err)
				}
				log.Info().Msg("Stdin closed, protocol server stopping")
				return nil
			}
			p.handleLine(engine, line)
		}
	}
}

func (p *Protocol) handleLine(engine Engine, line []byte) {
	if len(line) == 0 {
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		log.Error().Err(err).Str("line", string(line)).Msg("Failed to parse JSON-RPC request")
		p.sendError(nil, CodeParseError, "Parse error", err.Error())
		return
	}

	if err := p.handleRequest(engine, &req); err != nil {
		log.Error().Err(err).Str("method", req.Method).Msg("Failed to handle request")
	}
}

func (p *Protocol) handleRequest(engine Engine, req *Request) error {
	log.Debug().Str("method", req.Method).Msg("Request received")

	switch req.Method {
	case "set_current_file":
		var params pathParams
		if err := p.decode(req, &params); err != nil {
			return err
		}
		return p.reply(req, nil, engine.SetCurrentFile(params.Path))

	case "start_file_monitoring":
		var params pathParams
		if err := p.decode(req, &params); err != nil {
			return err
		}
		return p.reply(req, nil, engine.StartFileMonitoring(params.Path))

	case "stop_file_monitoring":
		engine.StopFileMonitoring()
		return p.reply(req, nil, nil)

	case "start_file_loading":
		var params loadParams
		if err := p.decode(req, &params); err != nil {
			return err
		}
		return p.reply(req, nil, engine.StartFileLoading(params.Path, params.ReloadAll))

	case "cancel_file_loading":
		return p.reply(req, engine.CancelFileLoading(), nil)

	case "is_loading":
		return p.reply(req, engine.IsLoading(), nil)

	case "get_current_file":
		if path, ok := engine.GetCurrentFile(); ok {
			return p.reply(req, path, nil)
		}
		return p.reply(req, nil, nil)

	default:
		return p.fail(req, CodeMethodNotFound, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

// decode unmarshals params, answering -32602 on failure
func (p *Protocol) decode(req *Request, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		p.fail(req, CodeInvalidParams, "Invalid params", err.Error())
		return err
	}
	return nil
}

// reply answers a request. Notifications (no id) get no answer.
func (p *Protocol) reply(req *Request, result any, err error) error {
	if req.ID == nil {
		return err
	}
	switch {
	case err == nil:
		return p.writeJSON(response{JSONRPC: "2.0", ID: req.ID, Result: result})
	case errors.Is(err, domain.ErrNoPath):
		return p.sendError(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	default:
		return p.sendError(req.ID, CodeEngineError, err.Error(), ErrorData{Kind: domain.ErrorKind(err)})
	}
}

// fail answers a request with an error. Notifications get no answer.
func (p *Protocol) fail(req *Request, code int, message string, data any) error {
	if req.ID == nil {
		return nil
	}
	return p.sendError(req.ID, code, message, data)
}

func (p *Protocol) sendError(id any, code int, message string, data any) error {
	return p.writeJSON(errorResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	})
}

// writeJSON writes one JSON document per line
func (p *Protocol) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.out.Write(data)
	return err
}
