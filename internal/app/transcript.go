package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// TranscriptionTopic is the data channel topic the agent publishes transcriptions on.
const TranscriptionTopic = "transcription"

var (
	errInvalidUTF8 = errors.New("payload is not valid utf-8")
	errMissingText = errors.New("payload has no text field")
)

// TranscriptLog is the append-only chat history of one session.
type TranscriptLog struct {
	entries []domain.TranscriptEntry
}

func (l *TranscriptLog) Append(e domain.TranscriptEntry) {
	l.entries = append(l.entries, e)
}

// Entries returns a copy in insertion order.
func (l *TranscriptLog) Entries() []domain.TranscriptEntry {
	out := make([]domain.TranscriptEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *TranscriptLog) Len() int { return len(l.entries) }

// Reset drops the history when the session ends.
func (l *TranscriptLog) Reset() { l.entries = nil }

func (l *TranscriptLog) contains(text string, ts int64) bool {
	for _, e := range l.entries {
		if e.TimestampMs == ts && e.Text == text {
			return true
		}
	}
	return false
}

// transcriptionEvent is the wire shape: {"text": string, "timestamp"?: number}.
type transcriptionEvent struct {
	Text      *string  `json:"text"`
	Timestamp *float64 `json:"timestamp,omitempty"`
}

// TranscriptDecoder turns transcription messages into log entries.
// Failures are per message; the decoder stays usable.
type TranscriptDecoder struct {
	log *TranscriptLog
	now func() time.Time
}

func NewTranscriptDecoder(l *TranscriptLog, now func() time.Time) *TranscriptDecoder {
	if now == nil {
		now = time.Now
	}
	return &TranscriptDecoder{log: l, now: now}
}

// Handle decodes msg and appends an entry. It returns the appended entry, or an error
// classed as core.ErrDecode / core.ErrProtocolViolation when the message was dropped.
func (d *TranscriptDecoder) Handle(msg core.DataMessage) (domain.TranscriptEntry, bool, error) {
	entry, err := d.decode(msg)
	if err != nil {
		ev := log.Warn()
		if errors.Is(err, core.ErrProtocolViolation) {
			ev = log.Debug()
		}
		ev.Err(err).Str("module", "app.transcript").Str("topic", msg.Topic).Int("bytes", len(msg.Payload)).Msg("message dropped")
		return domain.TranscriptEntry{}, false, err
	}
	return entry, true, nil
}

func (d *TranscriptDecoder) decode(msg core.DataMessage) (domain.TranscriptEntry, error) {
	if msg.Topic != TranscriptionTopic {
		return domain.TranscriptEntry{}, fmt.Errorf("%w: topic %q", core.ErrProtocolViolation, msg.Topic)
	}
	receivedAt := d.now()

	if !utf8.Valid(msg.Payload) {
		return domain.TranscriptEntry{}, &core.DecodeError{Topic: msg.Topic, Err: errInvalidUTF8}
	}
	var ev transcriptionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return domain.TranscriptEntry{}, &core.DecodeError{Topic: msg.Topic, Err: err}
	}
	if ev.Text == nil {
		return domain.TranscriptEntry{}, fmt.Errorf("%w: %v", core.ErrProtocolViolation, errMissingText)
	}

	ts := receivedAt.UnixMilli()
	// Timestamps outside the int64 millisecond range count as absent.
	explicit := ev.Timestamp != nil && *ev.Timestamp > 0 && *ev.Timestamp < math.MaxInt64
	if explicit {
		ts = int64(*ev.Timestamp)
		if d.log.contains(*ev.Text, ts) {
			return domain.TranscriptEntry{}, fmt.Errorf("%w: redelivered transcription at %d", core.ErrProtocolViolation, ts)
		}
	}

	entry := domain.TranscriptEntry{
		SpeakerLabel: domain.SelfSpeakerLabel,
		Text:         *ev.Text,
		TimestampMs:  ts,
		IsSelf:       true,
	}
	d.log.Append(entry)
	return entry, nil
}
