// Package logging parses the text and JSON log line formats written by
// internal/shared/utils loggers, for tooling that needs to read logs back.
// The parsers are unexported; nothing outside this package calls them.
package logging

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// TextLogEntry is a parsed line from one of the text log files.
type TextLogEntry struct {
	Raw        string
	Timestamp  string
	Level      string
	Category   string
	Component  string
	LogID      string
	SourceFile string
	SourceLine int
	Message    string
}

var textLogLinePattern = regexp.MustCompile(
	`^(?P<ts>\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}) \[(?P<level>[A-Z]+)\] \[(?P<category>[A-Z]+)\] \[(?P<component>[^\]]+)\] (?:\[log_id=(?P<logid>[^\]]+)\] )?(?P<file>[\w.\-]+):(?P<line>\d+) - (?P<msg>.*)$`,
)

// parseTextLogLine parses one line of the "2026-02-08 01:11:57 [INFO]
// [SERVICE] [Main] [log_id=log-abc123] file.go:196 - message" format.
// Lines that don't match are returned with Raw and Message set to the
// original line so callers never drop unparseable log output.
func parseTextLogLine(line string) TextLogEntry {
	match := textLogLinePattern.FindStringSubmatch(line)
	if match == nil {
		return TextLogEntry{Raw: line, Message: line}
	}

	entry := TextLogEntry{Raw: line}
	for i, name := range textLogLinePattern.SubexpNames() {
		switch name {
		case "ts":
			entry.Timestamp = match[i]
		case "level":
			entry.Level = match[i]
		case "category":
			entry.Category = match[i]
		case "component":
			entry.Component = match[i]
		case "logid":
			entry.LogID = match[i]
		case "file":
			entry.SourceFile = match[i]
		case "line":
			if n, err := strconv.Atoi(match[i]); err == nil {
				entry.SourceLine = n
			}
		case "msg":
			entry.Message = match[i]
		}
	}
	return entry
}

// RequestLogEntry is a parsed line from the JSONL request log.
type RequestLogEntry struct {
	Raw       string
	Timestamp string
	RequestID string
	LogID     string
	EntryType string
	BodyBytes int64
	Payload   json.RawMessage
}

func parseRequestLogJSON(raw string) (RequestLogEntry, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestLogEntry{}, false
	}

	var decoded struct {
		Timestamp string          `json:"timestamp"`
		RequestID string          `json:"request_id"`
		LogID     string          `json:"log_id"`
		EntryType string          `json:"entry_type"`
		BodyBytes int64           `json:"body_bytes"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return RequestLogEntry{}, false
	}

	logID := decoded.LogID
	if logID == "" {
		if idx := strings.Index(decoded.RequestID, ":"); idx > 0 {
			logID = decoded.RequestID[:idx]
		}
	}

	var payload json.RawMessage
	if len(decoded.Payload) > 0 && string(decoded.Payload) != "null" {
		payload = decoded.Payload
	}

	return RequestLogEntry{
		Raw:       raw,
		Timestamp: decoded.Timestamp,
		RequestID: decoded.RequestID,
		LogID:     logID,
		EntryType: decoded.EntryType,
		BodyBytes: decoded.BodyBytes,
		Payload:   payload,
	}, true
}
