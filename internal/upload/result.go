package upload

import "fmt"

const noAnomalyHeadline = "No anomaly detected!"

// Result is the interpreted analysis response. It is either AnomalyDetected
// or NoAnomaly.
type Result interface {
	Scene() string
	Text() string
	isResult()
}

type AnomalyDetected struct {
	Message          string
	SceneDescription string
}

func (r AnomalyDetected) Scene() string { return r.SceneDescription }

func (r AnomalyDetected) Text() string {
	return fmt.Sprintf("%s\n\nScene: %s", r.Message, r.SceneDescription)
}

func (AnomalyDetected) isResult() {}

type NoAnomaly struct {
	SceneDescription string
}

func (r NoAnomaly) Scene() string { return r.SceneDescription }

func (r NoAnomaly) Text() string {
	return fmt.Sprintf("%s\n\nScene: %s", noAnomalyHeadline, r.SceneDescription)
}

func (NoAnomaly) isResult() {}

// Report is the display form of a Result held by a Session.
type Report struct {
	Anomaly          bool   `json:"anomaly"`
	Message          string `json:"message,omitempty"`
	SceneDescription string `json:"scene_description"`
	Text             string `json:"text"`
}

func newReport(r Result) *Report {
	rep := &Report{SceneDescription: r.Scene(), Text: r.Text()}
	if a, ok := r.(AnomalyDetected); ok {
		rep.Anomaly = true
		rep.Message = a.Message
	}
	return rep
}
