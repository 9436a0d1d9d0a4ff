package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Header constants used in script requests and responses.
const (
	// ArgsHeader carries the client command line, program name first.
	// Format: comma-separated, every argument URL-escaped. May repeat.
	ArgsHeader = "Thincf-Args"

	// StatesHeader lists fingerprints of states the client has applied.
	// Format: comma-separated. May repeat.
	StatesHeader = "Thincf-States"

	// EnvHeaderPrefix prefixes one header per client environment key,
	// e.g. "Thincf-Env-Os: freebsd". Values are comma-separated and
	// URL-escaped; keys are matched lower-cased.
	EnvHeaderPrefix = "Thincf-Env-"

	// ShellHeader names the interpreter of the returned script.
	ShellHeader = "Thincf-Shell"
)

// ErrMissingArgs is returned when a script request carries no command line.
var ErrMissingArgs = errors.New("client command line arguments missing")

// ParseScriptRequest reads the script request headers of h.
func ParseScriptRequest(h http.Header) (*ScriptRequest, error) {
	args, err := splitValues(h.Values(ArgsHeader), true)
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", ArgsHeader, err)
	}
	if len(args) == 0 || args[0] == "" {
		return nil, ErrMissingArgs
	}

	states, _ := splitValues(h.Values(StatesHeader), false)

	env := map[string][]string{}
	for key, values := range h {
		if len(key) <= len(EnvHeaderPrefix) || !strings.EqualFold(key[:len(EnvHeaderPrefix)], EnvHeaderPrefix) {
			continue
		}
		name := strings.ToLower(key[len(EnvHeaderPrefix):])
		parts, err := splitValues(values, true)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header: %w", key, err)
		}
		env[name] = append(env[name], parts...)
	}

	return &ScriptRequest{Args: args, States: states, Env: env}, nil
}

// SetHeaders writes r into h.
func (r *ScriptRequest) SetHeaders(h http.Header) {
	if len(r.Args) > 0 {
		h.Set(ArgsHeader, joinValues(r.Args))
	}
	if len(r.States) > 0 {
		h.Set(StatesHeader, strings.Join(r.States, ","))
	}
	for key, values := range r.Env {
		h.Set(EnvHeaderPrefix+key, joinValues(values))
	}
}

func splitValues(headers []string, unescape bool) ([]string, error) {
	var res []string
	for _, hdr := range headers {
		for _, part := range strings.Split(hdr, ",") {
			part = strings.TrimSpace(part)
			if !unescape {
				if part != "" {
					res = append(res, part)
				}
				continue
			}
			v, err := url.PathUnescape(part)
			if err != nil {
				return nil, err
			}
			res = append(res, v)
		}
	}
	return res, nil
}

func joinValues(values []string) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = url.PathEscape(v)
	}
	return strings.Join(escaped, ",")
}
