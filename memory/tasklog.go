package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/becomeliminal/ragent/core"
)

// Outcome is what an agent run produced.
type Outcome struct {
	Query        string
	Answer       string
	RetrievedIDs []string
	Steps        []string
	Confidence   float64
	Verified     bool
	TimedOut     bool
}

// NewTaskLog builds a TaskLog with a fresh id and an importance score.
func NewTaskLog(o Outcome, now time.Time) *core.TaskLog {
	return &core.TaskLog{
		TaskID:       uuid.New().String(),
		Query:        o.Query,
		RetrievedIDs: append([]string(nil), o.RetrievedIDs...),
		Steps:        append([]string(nil), o.Steps...),
		Answer:       o.Answer,
		Importance:   AssessImportance(o.Confidence, o.Verified, len(o.RetrievedIDs) > 0),
		Verified:     o.Verified,
		TimedOut:     o.TimedOut,
		CreatedAt:    now.UTC(),
	}
}

// AssessImportance scores a run in [0.1, 1.0].
// Runs with no retrieved context score the floor of 0.1.
func AssessImportance(confidence float64, verified, hadContext bool) float64 {
	if !hadContext {
		return 0.1
	}

	importance := 0.1 + 0.7*clamp01(confidence)

	// Verified answers are worth keeping
	if verified {
		importance += 0.2
	}

	if importance > 1.0 {
		importance = 1.0
	}
	return importance
}

// FormatTaskLog renders a log as a short block for history listings.
func FormatTaskLog(log *core.TaskLog, maxAnswer int) string {
	status := "unverified"
	switch {
	case log.TimedOut:
		status = "timed out"
	case log.Verified:
		status = "verified"
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s (%s, importance %.2f)",
		log.CreatedAt.Local().Format(time.DateTime), log.TaskID, status, log.Importance))
	parts = append(parts, fmt.Sprintf("  Q: %s", log.Query))
	parts = append(parts, fmt.Sprintf("  A: %s", truncate(oneLine(log.Answer), maxAnswer)))
	if len(log.RetrievedIDs) > 0 {
		parts = append(parts, fmt.Sprintf("  Sources: %s", strings.Join(log.RetrievedIDs, ", ")))
	}
	return strings.Join(parts, "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
