package turn

// State 表示单次请求在编排状态机中的位置。
type State string

const (
	StateReceived          State = "RECEIVED"
	StateEmotionDetected   State = "EMOTION_DETECTED"
	StateResponseGenerated State = "RESPONSE_GENERATED"
	StateDelivered         State = "DELIVERED"
	StateFailed            State = "FAILED"
)

var stateOrder = map[State]int{
	StateReceived:          0,
	StateEmotionDetected:   1,
	StateResponseGenerated: 2,
	StateDelivered:         3,
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// CanTransition reports whether from -> to is a legal forward step.
// FAILED is reachable from any non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	f, okFrom := stateOrder[from]
	t, okTo := stateOrder[to]
	return okFrom && okTo && t == f+1
}

// Response is what the pipeline hands back to the caller.
type Response struct {
	Reply        string   `json:"reply"`
	Transcript   string   `json:"transcript,omitempty"`
	EmotionLabel string   `json:"emotion"`
	Valence      float64  `json:"valence"`
	Arousal      *float64 `json:"arousal,omitempty"`
	State        State    `json:"state"`
	// Degraded is set when Reply is the canned fallback text.
	Degraded bool `json:"degraded"`
}
