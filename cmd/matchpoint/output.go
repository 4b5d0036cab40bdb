package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/matchpoint-io/matchpoint/internal/events"
)

// printJSON writes an indented JSON document to stdout, the machine-readable
// half of every command's output.
func printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	fmt.Println(string(payload))

	return nil
}

// writeMetricsJSON persists a metrics document for the caller's tooling.
func writeMetricsJSON(path string, v any) error {
	if path == "" {
		return nil
	}

	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write metrics file: %w", err)
	}

	return nil
}

// asMetrics flattens a metrics struct into the map form stage records carry.
func asMetrics(v any) map[string]any {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}

	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}

	return m
}

// newEmitter assembles the status event fan-out: JSONL file when requested,
// Kafka when brokers are configured, plus any extra sinks (the dashboard).
// The returned closer flushes and closes every sink.
func (a *app) newEmitter(statusJSONL string, extra ...events.Emitter) (events.Emitter, func(), error) {
	var sinks events.Multi

	sinks = append(sinks, extra...)

	if statusJSONL != "" {
		jsonl, err := events.NewJSONLSink(statusJSONL, a.logger)
		if err != nil {
			return nil, nil, err
		}

		sinks = append(sinks, jsonl)
	}

	if len(a.settings.KafkaBrokers) > 0 {
		sinks = append(sinks, events.NewKafkaSink(a.settings.KafkaBrokers, a.settings.KafkaTopic, a.logger))
	}

	if len(sinks) == 0 {
		return events.Nop{}, func() {}, nil
	}

	closer := func() {
		if err := sinks.Close(); err != nil {
			a.logger.Warn("close event sinks", "error", err.Error())
		}
	}

	return sinks, closer, nil
}

// signalContext returns a context cancelled by SIGINT/SIGTERM, so a running
// worker or pipeline finishes its current task and exits cleanly.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
