package pipeline

// State identifies a stage of the dictation lifecycle.
type State int

const (
	// StateIdle means no session is active and recording may start.
	StateIdle State = iota

	// StateRecording means microphone frames are flowing into the session
	// buffer.
	StateRecording

	// StateTranscribing means captured audio is with the STT provider.
	StateTranscribing

	// StateFormatting means the raw transcript is with the LLM provider.
	StateFormatting

	// StateError means the last session failed. Recoverable errors clear on
	// the next start command; device errors require a force reset.
	StateError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateFormatting:
		return "formatting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of the pipeline, returned for state
// queries over the command API.
type Status struct {
	State          string  `json:"state"`
	Speaking       bool    `json:"speaking"`
	SessionSeconds float64 `json:"session_seconds"`
	DroppedFrames  uint64  `json:"dropped_frames"`
	ActiveSTT      string  `json:"active_stt"`
	ActiveLLM      string  `json:"active_llm,omitempty"`
	LastError      string  `json:"last_error,omitempty"`
	ErrRecoverable bool    `json:"error_recoverable,omitempty"`
}
