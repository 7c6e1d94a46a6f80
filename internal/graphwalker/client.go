// Package graphwalker spawns and talks to the GraphWalker path generator:
// the REST service used for online runs and the check/offline/methods/convert
// subcommands.
package graphwalker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/altwalker/gowalker/internal/model"
	"github.com/altwalker/gowalker/internal/planner"
)

// Client speaks the generator's REST protocol, base path /graphwalker.
//
// The service is always started with the verbose flag so steps carry their
// model name; unless the client itself is verbose it strips data and
// properties from getNext responses.
type Client struct {
	base    string
	http    *http.Client
	verbose bool
	log     zerolog.Logger

	// alive reports whether the co-spawned service process is still up.
	// Nil when the service is remote (assumed alive).
	alive    func() bool
	exitInfo func() (int, string)
}

// NewClient returns a client for a generator REST service at host:port.
func NewClient(host string, port int, verbose bool, logger *zerolog.Logger) *Client {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &Client{
		base: fmt.Sprintf("http://%s:%d/graphwalker", host, port),
		// Step generation can be slow on large models; rely on request
		// contexts for deadlines instead of a client-level timeout.
		http:     &http.Client{Timeout: 0},
		verbose:  verbose,
		log:      log,
		exitInfo: func() (int, string) { return -1, "" },
	}
}

// BindService ties the client to a locally spawned service so that requests
// failing mid-run can report the child's exit code and output tail.
func (c *Client) BindService(s *Service) {
	c.alive = s.Alive
	c.exitInfo = func() (int, string) { return s.ExitCode(), s.Tail() }
}

// Load posts a new model suite, resetting execution and statistics.
func (c *Client) Load(ctx context.Context, suite *model.Suite) error {
	body, err := json.Marshal(suite)
	if err != nil {
		return fmt.Errorf("encode model suite: %w", err)
	}
	c.log.Debug().Str("base", c.base).Msg("loading models into generator")
	_, err = c.do(ctx, http.MethodPost, "/load", body)
	return err
}

// HasNext reports whether the stop conditions have not yet been fulfilled.
// An empty or malformed response means the path is exhausted, unless the
// service process has died, which is an error. A well-formed failure
// envelope is always an error.
func (c *Client) HasNext(ctx context.Context) (bool, error) {
	raw, err := c.request(ctx, http.MethodGet, "/hasNext", nil)
	if err != nil {
		return false, err
	}
	body, envErr := parseEnvelope(raw)
	if envErr != nil {
		if !errors.Is(envErr, errMalformedBody) {
			return false, envErr
		}
		if c.alive == nil || c.alive() {
			return false, nil
		}
		code, tail := c.exitInfo()
		return false, &Error{Message: "service exited while checking for the next step", ExitCode: code, Tail: tail}
	}
	var hasNext string
	if err := json.Unmarshal(body["hasNext"], &hasNext); err != nil {
		return false, nil
	}
	return hasNext == "true", nil
}

// GetNext returns the next step of the path, normalized to the flat step
// shape.
func (c *Client) GetNext(ctx context.Context) (planner.Step, error) {
	body, err := c.do(ctx, http.MethodGet, "/getNext", nil)
	if err != nil {
		return planner.Step{}, err
	}
	return normalizeStep(body, c.verbose)
}

// GetData returns the model context. Values are coerced to their wire string
// form; test code re-parses as needed.
func (c *Client) GetData(ctx context.Context) (map[string]string, error) {
	body, err := c.do(ctx, http.MethodGet, "/getData", nil)
	if err != nil {
		return nil, err
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(body["data"], &data); err != nil {
		return nil, &Error{Message: fmt.Sprintf("malformed getData response: %v", err), ExitCode: -1}
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = rawToString(v)
	}
	return out, nil
}

// SetData writes one key into the model context. Strings are quoted, bools
// and numbers are passed as bare JavaScript literals.
func (c *Client) SetData(ctx context.Context, key string, value any) error {
	c.log.Debug().Str("key", key).Interface("value", value).Msg("set data")
	path := fmt.Sprintf("/setData/%s=%s", escape(key), escape(jsLiteral(value)))
	_, err := c.do(ctx, http.MethodPut, path, nil)
	return err
}

// Restart resets the loaded models to their initial state.
func (c *Client) Restart(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPut, "/restart", nil)
	return err
}

// Fail marks the current step as failed. The message travels URL-escaped in
// the request path; an empty message is replaced with a placeholder.
func (c *Client) Fail(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "Unknown error."
	}
	c.log.Debug().Str("message", message).Msg("fail step")
	// The fail endpoint replies without the usual result envelope.
	_, err := c.request(ctx, http.MethodPut, "/fail/"+escape(message), nil)
	return err
}

// GetStatistics returns the generator's session statistics.
func (c *Client) GetStatistics(ctx context.Context) (planner.Statistics, error) {
	body, err := c.do(ctx, http.MethodGet, "/getStatistics", nil)
	if err != nil {
		return nil, err
	}
	stats := make(planner.Statistics, len(body))
	for k, v := range body {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		stats[k] = val
	}
	return stats, nil
}

// do issues a request and unwraps the result envelope.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (map[string]json.RawMessage, error) {
	raw, err := c.request(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	fields, err := parseEnvelope(raw)
	if err != nil {
		return nil, err
	}
	return fields, nil
}

func (c *Client) request(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if c.alive != nil && !c.alive() {
			code, tail := c.exitInfo()
			return nil, &Error{Message: "service exited: " + err.Error(), ExitCode: code, Tail: tail}
		}
		return nil, &Error{Message: err.Error(), ExitCode: -1}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: "read response: " + err.Error(), ExitCode: -1}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Message: fmt.Sprintf("responded with status code %d", resp.StatusCode), ExitCode: -1}
	}
	return raw, nil
}

// errMalformedBody marks a response that does not decode as a result
// envelope at all, as opposed to a well-formed failure envelope.
var errMalformedBody = &Error{Message: "malformed response body", ExitCode: -1}

// parseEnvelope validates the generator's {"result": "ok"} envelope and
// returns the remaining fields. Bodies that do not carry a result status
// report errMalformedBody.
func parseEnvelope(raw []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errMalformedBody
	}
	var result string
	if err := json.Unmarshal(fields["result"], &result); err != nil {
		return nil, errMalformedBody
	}
	if result == "ok" {
		delete(fields, "result")
		return fields, nil
	}
	if msg, ok := fields["error"]; ok {
		return nil, &Error{Message: "responded with the error: " + rawToString(msg), ExitCode: -1}
	}
	return nil, &Error{Message: fmt.Sprintf("responded with a %q status", result), ExitCode: -1}
}

// rawToString coerces a JSON value to its wire string form: quoted strings
// are unquoted, everything else keeps its literal spelling.
func rawToString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// jsLiteral encodes a value the way the generator's JavaScript context
// expects it.
func jsLiteral(value any) string {
	switch v := value.(type) {
	case string:
		return `"` + v + `"`
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// escape percent-encodes every reserved character, including spaces.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
