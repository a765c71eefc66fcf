package clienthttp

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/Telestream/srtStreamer/internal/model"
)

// LoginResult is the reply of POST /login.
type LoginResult struct {
	Message    string  `json:"message"`
	Expiration float64 `json:"expiration"`
	APIKey     string  `json:"api_key"`
}

// StartRequest is the body of POST /start-stream.
type StartRequest struct {
	InputType   string   `json:"input_type"`
	File        *string  `json:"file"`
	Duration    int      `json:"duration"`
	Destination []string `json:"destination"`
	StartOffset int      `json:"start_offset"`
	Redundant   bool     `json:"redundant"`
}

// StartResult is the reply of POST /start-stream.
type StartResult struct {
	Status             string   `json:"status"`
	StreamID           string   `json:"stream_id"`
	Destination        []string `json:"destination"`
	Redundant          bool     `json:"redundant"`
	File               string   `json:"file"`
	ScheduledStartTime *string  `json:"scheduled_start_time"`
	Message            string   `json:"message"`
}

// StopSourceResult is the reply of POST /stop-random-source/{id}. RemainingDestinations
// is empty when the whole stream was stopped.
type StopSourceResult struct {
	Status                string   `json:"status"`
	StreamID              string   `json:"stream_id"`
	RemainingDestinations []string `json:"remaining_destinations"`
}

// UploadResult is the reply of POST /upload.
type UploadResult struct {
	Status    string  `json:"status"`
	Filename  string  `json:"filename"`
	ExpiresAt *string `json:"expires_at"`
}

type activeStreamsResponse struct {
	ActiveStreams []wireStream `json:"active_streams"`
}

type bandwidthResponse struct {
	StreamID  string             `json:"stream_id"`
	Bandwidth map[string]float64 `json:"bandwidth"`
}

type filesResponse struct {
	Files []string `json:"files"`
}

type wireStream struct {
	StreamID           string          `json:"stream_id"`
	File               *string         `json:"file"`
	RemainingDuration  *float64        `json:"remaining_duration"`
	RemainingDelay     *float64        `json:"remaining_delay"`
	Destination        json.RawMessage `json:"destination"`
	ScheduledStartTime *string         `json:"scheduled_start_time"`
	Status             wireStatus      `json:"status"`
}

type wireStatus struct {
	Status             string          `json:"status"`
	Destination        json.RawMessage `json:"destination"`
	Redundant          bool            `json:"redundant"`
	ScheduledStartTime *string         `json:"scheduled_start_time"`
	File               *string         `json:"file"`
	RemainingDuration  *float64        `json:"remaining_duration"`
	RemainingDelay     *float64        `json:"remaining_delay"`
	Message            string          `json:"message"`
}

// UnmarshalJSON accepts either the status object or a bare status word.
func (s *wireStatus) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = wireStatus{}
		return nil
	}
	if b[0] == '"' {
		var word string
		if err := json.Unmarshal(b, &word); err != nil {
			return err
		}
		*s = wireStatus{Status: word}
		return nil
	}
	type plain wireStatus
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*s = wireStatus(p)
	return nil
}

// parseDestinations accepts a list, a comma separated string or a single string.
func parseDestinations(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return cleanDestinations(list)
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return cleanDestinations(strings.Split(single, ","))
	}
	return nil
}

func cleanDestinations(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func firstString(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func firstFloat(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

// toRecord converts one active_streams entry into the domain record.
func (w wireStream) toRecord() model.StreamRecord {
	dests := parseDestinations(w.Status.Destination)
	if len(dests) == 0 {
		dests = parseDestinations(w.Destination)
	}
	remaining := firstFloat(w.RemainingDuration, w.Status.RemainingDuration)
	if remaining < 0 {
		remaining = 0
	}
	return model.StreamRecord{
		ID:                w.StreamID,
		File:              firstString(w.Status.File, w.File),
		Status:            w.status(),
		Destinations:      dests,
		RemainingDuration: remaining,
		Redundant:         w.Status.Redundant,
	}
}

func (w wireStream) status() model.Status {
	word := strings.TrimSpace(w.Status.Status)
	switch {
	case strings.EqualFold(word, "Scheduled"):
		return model.Scheduled(firstString(w.Status.ScheduledStartTime, w.ScheduledStartTime))
	case strings.EqualFold(word, "Downloading"):
		return model.Downloading()
	case strings.EqualFold(word, "Error"):
		return model.Errored(w.Status.Message)
	case len(word) > len("Error:") && strings.EqualFold(word[:len("Error:")], "Error:"):
		msg := w.Status.Message
		if msg == "" {
			msg = strings.TrimSpace(word[len("Error:"):])
		}
		return model.Errored(msg)
	case word == "":
		return model.Running("Unknown", firstFloat(w.RemainingDelay, w.Status.RemainingDelay))
	default:
		return model.Running(word, firstFloat(w.RemainingDelay, w.Status.RemainingDelay))
	}
}
