package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError   ErrorCode = "InputError"
	NetworkError ErrorCode = "NetworkError"
	ParseError   ErrorCode = "ParseError"
	ShapeError   ErrorCode = "ShapeError"
)

// SpecError is a structured error naming the malformed construct and its location.
type SpecError struct {
	Code     ErrorCode
	Message  string
	Location string // file path or URL
	Entity   string // offending type or endpoint name, when known
	Cause    error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// DefaultSourceURL returns the upstream location of the versioned specification
// snapshot for the given branch.
func DefaultSourceURL(branch string) string {
	if strings.TrimSpace(branch) == "" {
		branch = "main"
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/elastic/elasticsearch-specification/%s/output/schema/schema.json", branch)
}

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// SkipEndpoints lists endpoint names, or "prefix*" patterns, excluded from
	// the loaded document.
	SkipEndpoints []string
}

// DefaultSettings returns recommended defaults. The default skip list excludes
// endpoints the generated surface cannot usefully expose.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout:   10 * time.Second,
		MaxRetries:    3,
		BackoffBase:   200 * time.Millisecond,
		SkipEndpoints: []string{"knn_search", "_internal*"},
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option             { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option  { return func(s *Settings) { s.BackoffBase = d } }
func WithSkipEndpoints(names []string) Option {
	return func(s *Settings) { s.SkipEndpoints = names }
}

// Load reads and parses a specification document into an immutable Document.
//
// input may be a filesystem path or an http/https URL. Other URL schemes are
// rejected. A document whose top-level shape does not match the expected
// dialect fails with a ShapeError rather than being silently accepted.
func Load(ctx context.Context, input string, opts ...Option) (*Document, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "schema: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}

	// Classify input as URL or file path.
	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""

	var raw []byte
	location := input
	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("schema: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		fetched, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		raw = fetched
	} else {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
		}
		location = abs
		read, err := os.ReadFile(abs)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
		}
		raw = read
	}

	doc, err := Parse(raw, location)
	if err != nil {
		return nil, err
	}
	doc.Endpoints = filterEndpoints(doc.Endpoints, settings.SkipEndpoints)
	return doc, nil
}

// Parse decodes a raw specification document. The top-level object must carry
// exactly the known keys of the dialect: unknown keys indicate a schema
// evolution this generator does not understand and must fail loudly.
func Parse(raw []byte, location string) (*Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse document: %v", err), Location: location, Cause: err}
	}

	known := map[string]bool{"_info": true, "endpoints": true, "types": true}
	var unknown []string
	for key := range top {
		if !known[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &SpecError{
			Code:     ShapeError,
			Message:  fmt.Sprintf("document has unknown top-level keys %s; refusing to guess at a newer dialect", strings.Join(unknown, ", ")),
			Location: location,
		}
	}
	if _, ok := top["endpoints"]; !ok {
		return nil, &SpecError{Code: ShapeError, Message: "document is missing the top-level endpoints sequence", Location: location}
	}
	if _, ok := top["types"]; !ok {
		return nil, &SpecError{Code: ShapeError, Message: "document is missing the top-level types sequence", Location: location}
	}

	doc := &Document{}
	if infoRaw, ok := top["_info"]; ok {
		if err := json.Unmarshal(infoRaw, &doc.Info); err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse _info: %v", err), Location: location, Cause: err}
		}
	}
	if err := json.Unmarshal(top["types"], &doc.Types); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse types: %v", err), Location: location, Cause: err}
	}
	if err := json.Unmarshal(top["endpoints"], &doc.Endpoints); err != nil {
		return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse endpoints: %v", err), Location: location, Cause: err}
	}

	for i := range doc.Endpoints {
		if strings.TrimSpace(doc.Endpoints[i].Name) == "" {
			return nil, &SpecError{Code: ShapeError, Message: fmt.Sprintf("endpoint at index %d has no name", i), Location: location}
		}
		if len(doc.Endpoints[i].URLs) == 0 {
			return nil, &SpecError{Code: ShapeError, Message: fmt.Sprintf("endpoint %s declares no URL templates", doc.Endpoints[i].Name), Location: location, Entity: doc.Endpoints[i].Name}
		}
	}

	doc.buildIndex()
	return doc, nil
}

func filterEndpoints(eps []EndpointDefinition, skip []string) []EndpointDefinition {
	if len(skip) == 0 {
		return eps
	}
	kept := make([]EndpointDefinition, 0, len(eps))
	for _, e := range eps {
		if skipMatch(e.Name, skip) {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func skipMatch(name string, skip []string) bool {
	for _, pat := range skip {
		if prefix, ok := strings.CutSuffix(pat, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == pat {
			return true
		}
	}
	return false
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := &http.Client{Timeout: settings.HTTPTimeout}
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return io.ReadAll(resp.Body)
		}
		if err != nil {
			lastErr = err
		} else {
			defer resp.Body.Close()
			if resp.StatusCode >= 500 || resp.StatusCode == 429 {
				lastErr = fmt.Errorf("transient http error %d", resp.StatusCode)
			} else {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
		}
		// Backoff before next attempt
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}
