package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/planner"
)

// DefaultURL is where an executor service listens unless told otherwise.
const DefaultURL = "http://localhost:5000"

// HTTP speaks the executor wire protocol. When a service process was
// attached the executor owns it and kills it on Kill.
type HTTP struct {
	url  string
	base string
	log  zerolog.Logger

	// quick serves the cheap introspection calls; exec has no timeout since
	// a step may legitimately run for minutes.
	quick *http.Client
	exec  *http.Client

	service *Service
}

// NewHTTP returns an executor client for a service at rawURL.
func NewHTTP(rawURL string, logger *zerolog.Logger) *HTTP {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	if strings.TrimSpace(rawURL) == "" {
		rawURL = DefaultURL
	}
	rawURL = strings.TrimRight(rawURL, "/")
	return &HTTP{
		url:   rawURL,
		base:  rawURL + "/altwalker/",
		log:   log,
		quick: &http.Client{Timeout: 10 * time.Second},
		exec:  &http.Client{Timeout: 0},
	}
}

// AttachService hands ownership of a running service process to the
// executor.
func (e *HTTP) AttachService(s *Service) { e.service = s }

// URL returns the service root.
func (e *HTTP) URL() string { return e.url }

func (e *HTTP) Load(ctx context.Context, path string) error {
	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return err
	}
	e.log.Debug().Str("path", path).Msg("loading test code")
	_, err = e.request(ctx, e.quick, http.MethodPost, "load", nil, body)
	return err
}

func (e *HTTP) Reset(ctx context.Context) error {
	_, err := e.request(ctx, e.quick, http.MethodPut, "reset", nil, nil)
	return err
}

func (e *HTTP) HasModel(ctx context.Context, name string) (bool, error) {
	payload, err := e.request(ctx, e.quick, http.MethodGet, "hasModel", url.Values{"name": {name}}, nil)
	if err != nil {
		return false, err
	}
	return payloadBool(payload, "hasModel")
}

func (e *HTTP) HasStep(ctx context.Context, modelName, name string) (bool, error) {
	params := url.Values{"name": {name}}
	if modelName != "" {
		params.Set("modelName", modelName)
	}
	payload, err := e.request(ctx, e.quick, http.MethodGet, "hasStep", params, nil)
	if err != nil {
		return false, err
	}
	return payloadBool(payload, "hasStep")
}

func (e *HTTP) ExecuteStep(ctx context.Context, modelName, name string, data map[string]string, step planner.Step) (Result, error) {
	params := url.Values{"name": {name}}
	if modelName != "" {
		params.Set("modelName", modelName)
	}
	if data == nil {
		data = map[string]string{}
	}
	body, err := json.Marshal(map[string]any{"data": data, "step": step})
	if err != nil {
		return Result{}, err
	}

	payload, err := e.request(ctx, e.exec, http.MethodPost, "executeStep", params, body)
	if err != nil {
		return Result{}, err
	}
	// The output key is mandatory even when empty; its absence means the
	// service does not implement the protocol.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Result{}, &Error{Kind: KindUnhandled, Message: "malformed executeStep payload"}
	}
	if _, ok := probe["output"]; !ok {
		return Result{}, &Error{Kind: KindUnhandled, Message: "invalid response, the payload must include the key: output"}
	}
	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return Result{}, &Error{Kind: KindUnhandled, Message: "malformed executeStep payload: " + err.Error()}
	}
	return result, nil
}

// Kill tears down the owned service process, if any. Idempotent.
func (e *HTTP) Kill() error {
	if e.service == nil {
		return nil
	}
	return e.service.Close()
}

// request issues one call and returns the raw payload value.
func (e *HTTP) request(ctx context.Context, client *http.Client, method, path string, params url.Values, body []byte) (json.RawMessage, error) {
	target := e.base + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "read response: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, e.statusError(resp.StatusCode, raw)
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Payload == nil {
		return json.RawMessage("{}"), nil
	}
	return envelope.Payload, nil
}

func (e *HTTP) statusError(code int, raw []byte) error {
	execErr := &Error{
		Kind:       kindForStatus(code),
		StatusCode: code,
		Message:    fmt.Sprintf("the executor from %s responded with status code: %d", e.url, code),
	}
	var envelope struct {
		Error *StepError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error != nil {
		execErr.Message += ": " + envelope.Error.Message
		execErr.Trace = envelope.Error.Trace
	}
	return execErr
}

func payloadBool(payload json.RawMessage, key string) (bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false, &Error{Kind: KindUnhandled, Message: "malformed payload"}
	}
	raw, ok := fields[key]
	if !ok {
		return false, &Error{Kind: KindUnhandled, Message: "invalid response, the payload must include the key: " + key}
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return false, &Error{Kind: KindUnhandled, Message: "invalid response, the key " + key + " must be a boolean"}
	}
	return value, nil
}
