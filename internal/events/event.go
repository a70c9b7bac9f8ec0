package events

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSubject is where anomaly events go unless configured otherwise.
const DefaultSubject = "console.anomaly"

// AnomalyEvent is published once per applied anomaly result.
type AnomalyEvent struct {
	EventID          uuid.UUID `json:"event_id"`
	ConsoleID        string    `json:"console_id"`
	FileName         string    `json:"file_name"`
	Message          string    `json:"message"`
	SceneDescription string    `json:"scene_description"`
	DetectedAt       time.Time `json:"detected_at"`
}

func NewAnomalyEvent(consoleID, fileName, message, scene string, at time.Time) AnomalyEvent {
	return AnomalyEvent{
		EventID:          uuid.New(),
		ConsoleID:        consoleID,
		FileName:         fileName,
		Message:          message,
		SceneDescription: scene,
		DetectedAt:       at.UTC(),
	}
}
