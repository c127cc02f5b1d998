package generation

import (
	"fmt"

	"soapscribe/internal/models"
)

const (
	soapNotePrompt = "You are a medical assistant. Create a SOAP note for this transcript:\n"
	summaryPrompt  = "Summarize the following transcript in plain, friendly language:\n"
)

// BuildPrompt returns the single user prompt for a task. It is deterministic per task.
func BuildPrompt(task models.TaskKind, transcript string) (string, error) {
	switch task {
	case models.TaskSoapNote:
		return soapNotePrompt + transcript, nil
	case models.TaskSummary:
		return summaryPrompt + transcript, nil
	default:
		return "", fmt.Errorf("unknown task kind: %q", task)
	}
}
