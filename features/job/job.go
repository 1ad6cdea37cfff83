package job

import (
	"encoding/json"
	"time"
)

// Job is a ledger entry for an extraction that failed or finished with
// dropped chunks. Payload holds the originating job event.
type Job struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	CreatedAt time.Time       `json:"created_at"`
}
