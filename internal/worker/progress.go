package worker

import (
	"encoding/json"
	"strings"

	"lectern/internal/queue"
)

// progressPrefix marks stderr lines carrying a structured progress frame.
const progressPrefix = "PROGRESS:"

// ParseProgressLine decodes one stderr line. The grammar is strict: the
// literal prefix, then a JSON object with step/message and optional
// progress/total. Lines that do not match the prefix, or whose payload is not
// valid JSON, return false and belong in the diagnostic log, never in an
// error.
func ParseProgressLine(line string) (queue.Progress, bool) {
	rest, ok := strings.CutPrefix(line, progressPrefix)
	if !ok {
		return queue.Progress{}, false
	}
	var frame queue.Progress
	if err := json.Unmarshal([]byte(rest), &frame); err != nil {
		return queue.Progress{}, false
	}
	return frame, true
}
