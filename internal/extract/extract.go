// Package extract turns raw model output into tracker records.
package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/tracker/internal/tracker"
)

var errNoPayload = errors.New("no <tracker> block in response")

// Extractor parses the first <tracker> block of a response into a record.
// It never returns an error: unusable output is logged and reported as absent.
type Extractor struct {
	def    tracker.Definition
	codec  tracker.Codec
	logger *slog.Logger

	mu      sync.Mutex
	schemas map[tracker.Filter]*jsonschema.Schema
}

// New creates an Extractor for a definition and output format.
func New(def tracker.Definition, format tracker.Format, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		def:     def,
		codec:   tracker.CodecFor(format),
		logger:  logger,
		schemas: make(map[tracker.Filter]*jsonschema.Schema),
	}
}

// Extract returns the record embedded in raw, or false when there is none
// or it cannot be parsed. Each failure is logged exactly once.
func (e *Extractor) Extract(raw string, filter tracker.Filter) (tracker.Record, bool) {
	rec, err := e.parse(raw, filter)
	if err != nil {
		e.logger.Error("failed to extract tracker",
			"error", err,
			"raw", raw)
		return nil, false
	}
	e.logger.Debug("extracted tracker", "fields", len(rec))
	return rec, true
}

func (e *Extractor) parse(raw string, filter tracker.Filter) (tracker.Record, error) {
	payload, ok := tracker.FindPayload(raw)
	if !ok {
		return nil, errNoPayload
	}
	if stripped := stripCodeFences(payload); stripped != "" {
		payload = stripped
	}

	fields := e.def.Included(filter, false)
	rec, err := e.codec.FromWireText(payload, fields)
	if err != nil {
		return nil, err
	}
	rec = tracker.Conform(rec, e.def, filter, e.codec.Format())

	schema, err := e.schema(filter)
	if err != nil {
		return nil, err
	}
	if err := tracker.Validate(schema, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Extractor) schema(filter tracker.Filter) (*jsonschema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.schemas[filter]; ok {
		return s, nil
	}
	s, err := tracker.Schema(e.def, filter, e.codec.Format())
	if err != nil {
		return nil, fmt.Errorf("build schema for filter %q: %w", filter, err)
	}
	e.schemas[filter] = s
	return s, nil
}

// stripCodeFences unwraps a payload the model fenced as a markdown code
// block. Returns "" when content is not fenced.
func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
