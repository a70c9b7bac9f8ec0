package alerts

import (
	"encoding/json"
	"fmt"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Day places a card in the date filter.
type Day string

const (
	DayToday     Day = "today"
	DayYesterday Day = "yesterday"
	DayWeek      Day = "week"
	DayMonth     Day = "month"
)

// Card is one static alert shown on the dashboard.
type Card struct {
	ID       int      `json:"id" yaml:"id"`
	Emoji    string   `json:"emoji" yaml:"emoji"`
	Title    string   `json:"title" yaml:"title"`
	Location string   `json:"location" yaml:"location"`
	Camera   string   `json:"camera" yaml:"camera"`
	Time     string   `json:"time" yaml:"time"`
	Severity Severity `json:"severity" yaml:"severity"`
	Day      Day      `json:"day" yaml:"day"`
}

func (c Card) Critical() bool {
	return c.Severity == SeverityHigh
}

func (c Card) Heading() string {
	return fmt.Sprintf("%s – %s", c.Title, c.Location)
}

func (c Card) Description() string {
	return fmt.Sprintf("This alert indicates %s detected at %s using %s. "+
		"Please review the recorded footage and take necessary action.",
		c.Title, c.Location, c.Camera)
}

// MarshalJSON adds the display heading, description and critical flag so
// clients render cards without rebuilding the text.
func (c Card) MarshalJSON() ([]byte, error) {
	type plain Card
	return json.Marshal(struct {
		plain
		Heading     string `json:"heading"`
		Description string `json:"description"`
		Critical    bool   `json:"critical"`
	}{plain(c), c.Heading(), c.Description(), c.Critical()})
}

// DefaultCards is the built-in sample set.
func DefaultCards() []Card {
	return []Card{
		{
			ID: 1, Emoji: "🚨", Title: "Unauthorized Access", Location: "Main Entrance",
			Camera: "CameraID: 001", Time: "10:45 AM", Severity: SeverityHigh, Day: DayToday,
		},
		{
			ID: 2, Emoji: "⚠️", Title: "Camera Offline", Location: "Server Room",
			Camera: "CameraID: 322", Time: "09:30 AM", Severity: SeverityMedium, Day: DayToday,
		},
		{
			ID: 3, Emoji: "🔔", Title: "After Hours Movement", Location: "Parking Lot",
			Camera: "CameraID: 127", Time: "08:15 AM", Severity: SeverityLow, Day: DayToday,
		},
	}
}

func validate(cards []Card) error {
	seen := make(map[int]bool, len(cards))
	for i, c := range cards {
		if c.Title == "" {
			return fmt.Errorf("card %d: title is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("card %d: duplicate id %d", i, c.ID)
		}
		seen[c.ID] = true
		switch c.Severity {
		case SeverityHigh, SeverityMedium, SeverityLow:
		default:
			return fmt.Errorf("card %d: unknown severity %q", c.ID, c.Severity)
		}
		switch c.Day {
		case DayToday, DayYesterday, DayWeek, DayMonth:
		default:
			return fmt.Errorf("card %d: unknown day %q", c.ID, c.Day)
		}
	}
	return nil
}
