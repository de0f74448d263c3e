// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/compilecrac/lib/clock"
)

// WaveKind distinguishes the first wave of a lineage from the waves
// triggered by restores.
type WaveKind string

const (
	WaveInitial WaveKind = "initial"
	WaveRestore WaveKind = "restore"
)

// Log appends JSONL entries to a file. All methods are nil-safe.
type Log struct {
	logger  *slog.Logger
	clock   clock.Clock
	file    *os.File
	encoder *json.Encoder
}

// Open opens (creating if needed) the log at path for appending. A nil
// logger discards write failures; a nil clock means clock.Real().
func Open(path string, timeSource clock.Clock, logger *slog.Logger) (*Log, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening results log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if timeSource == nil {
		timeSource = clock.Real()
	}
	return &Log{
		logger:  logger,
		clock:   timeSource,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close closes the log file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// WaveStart records the start of a wave of groups invocations.
func (l *Log) WaveStart(wave int, kind WaveKind, groups int) {
	if l == nil {
		return
	}
	l.write(waveStartEntry{
		Type:      "wave_start",
		Wave:      wave,
		Kind:      kind,
		Groups:    groups,
		Timestamp: l.clock.Now().UTC().Format(time.RFC3339Nano),
	})
}

// Invocation describes one finished tool invocation.
type Invocation struct {
	Wave     int
	Index    int
	Args     []string
	Status   int
	Duration time.Duration

	// Error is the failure text, empty on success.
	Error string
}

// Invocation records the outcome of one tool invocation.
func (l *Log) Invocation(invocation Invocation) {
	if l == nil {
		return
	}
	l.write(invocationEntry{
		Type:       "invocation",
		Wave:       invocation.Wave,
		Index:      invocation.Index,
		Args:       invocation.Args,
		Status:     invocation.Status,
		DurationMS: invocation.Duration.Milliseconds(),
		Error:      invocation.Error,
	})
}

// WaveComplete records that every group of a wave succeeded.
func (l *Log) WaveComplete(wave, groups int, duration time.Duration) {
	if l == nil {
		return
	}
	l.write(waveCompleteEntry{
		Type:       "wave_complete",
		Wave:       wave,
		Groups:     groups,
		DurationMS: duration.Milliseconds(),
	})
}

// WaveFailed records the fail-fast stop of a wave at failedIndex.
func (l *Log) WaveFailed(wave, failedIndex, status int, message string, duration time.Duration) {
	if l == nil {
		return
	}
	l.write(waveFailedEntry{
		Type:        "wave_failed",
		Wave:        wave,
		FailedIndex: failedIndex,
		Status:      status,
		Error:       message,
		DurationMS:  duration.Milliseconds(),
	})
}

func (l *Log) write(entry any) {
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write results log entry", "error", err)
		return
	}
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync results log", "error", err)
	}
}

// One struct per line type keeps the wire format explicit.

type waveStartEntry struct {
	Type      string   `json:"type"`
	Wave      int      `json:"wave"`
	Kind      WaveKind `json:"kind"`
	Groups    int      `json:"groups"`
	Timestamp string   `json:"timestamp"`
}

type invocationEntry struct {
	Type       string   `json:"type"`
	Wave       int      `json:"wave"`
	Index      int      `json:"index"`
	Args       []string `json:"args"`
	Status     int      `json:"status"`
	DurationMS int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

type waveCompleteEntry struct {
	Type       string `json:"type"`
	Wave       int    `json:"wave"`
	Groups     int    `json:"groups"`
	DurationMS int64  `json:"duration_ms"`
}

type waveFailedEntry struct {
	Type        string `json:"type"`
	Wave        int    `json:"wave"`
	FailedIndex int    `json:"failed_index"`
	Status      int    `json:"status"`
	Error       string `json:"error"`
	DurationMS  int64  `json:"duration_ms"`
}
