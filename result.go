package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusNoItems Status = "no_items"
	StatusError   Status = "error"
)

// RunLog is the ordered history of a run. Every line is also sent to the
// structured logger.
type RunLog struct {
	lines  []string
	logger *slog.Logger
}

func NewRunLog(logger *slog.Logger) *RunLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLog{logger: logger}
}

func (l *RunLog) Add(msg string) {
	l.lines = append(l.lines, msg)
	l.logger.Info(msg)
}

func (l *RunLog) Warn(msg string) {
	l.lines = append(l.lines, msg)
	l.logger.Warn(msg)
}

func (l *RunLog) Lines() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// RunResult is the single durable output of a run. Build it with one of the
// constructors so each status only carries its own fields.
type RunResult struct {
	status  Status
	history []string
	added   []string
	err     string
}

func okResult(history, added []string) *RunResult {
	return &RunResult{status: StatusOK, history: history, added: added}
}

func noItemsResult(history []string) *RunResult {
	return &RunResult{status: StatusNoItems, history: history}
}

// errorResult keeps the urls added before the failure.
func errorResult(history, added []string, err error) *RunResult {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &RunResult{status: StatusError, history: history, added: added, err: msg}
}

func (r *RunResult) Status() Status      { return r.status }
func (r *RunResult) History() []string   { return r.history }
func (r *RunResult) AddedURLs() []string { return r.added }
func (r *RunResult) ErrorMessage() string { return r.err }

type runResultJSON struct {
	Status     Status   `json:"status"`
	History    []string `json:"history"`
	AddedURLs  []string `json:"addedUrls"`
	AddedCount int      `json:"addedCount"`
	Error      string   `json:"error,omitempty"`
}

func (r *RunResult) MarshalJSON() ([]byte, error) {
	out := runResultJSON{
		Status:     r.status,
		History:    r.history,
		AddedURLs:  r.added,
		AddedCount: len(r.added),
	}
	if out.History == nil {
		out.History = []string{}
	}
	if out.AddedURLs == nil {
		out.AddedURLs = []string{}
	}
	if r.status == StatusError {
		out.Error = r.err
	}
	return json.Marshal(out)
}

func (r *RunResult) UnmarshalJSON(data []byte) error {
	var in runResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = RunResult{status: in.Status, history: in.History, added: in.AddedURLs, err: in.Error}
	return nil
}

// ReadResult decodes the result file at path. A missing file yields nil.
func ReadResult(path string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var r RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &r, nil
}

// WriteResult replaces the file at path with r. The document is written to a
// temporary file in the same directory and renamed into place.
func WriteResult(path string, r *RunResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating result dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".n8n-result-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp result: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing result: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing result: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing result file: %w", err)
	}
	return nil
}

// Relay copies the result file at path to w followed by a newline. A missing
// or blank file writes nothing.
func Relay(path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
