package domain

// SelfSpeakerLabel is the label every decoded transcription is shown with.
const SelfSpeakerLabel = "You"

// TranscriptEntry is one line of the chat history. Insertion order is authoritative;
// TimestampMs only describes the entry.
type TranscriptEntry struct {
	SpeakerLabel string `json:"name"`
	Text         string `json:"message"`
	TimestampMs  int64  `json:"timestamp"`
	IsSelf       bool   `json:"isSelf"`
}
