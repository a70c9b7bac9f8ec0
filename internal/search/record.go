package search

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Record is one matched clip.
type Record struct {
	Video             string `json:"video"`
	AbsoluteStartTime string `json:"absolute_start_time"`
	AbsoluteEndTime   string `json:"absolute_end_time"`
	Document          string `json:"document"`
	ClipPath          string `json:"clip_path"`
	PlaybackURL       string `json:"playback_url"`
}

// wireRecord keeps field presence so malformed entries can be told apart
// from empty strings.
type wireRecord struct {
	Video             *string `json:"video"`
	AbsoluteStartTime *string `json:"absolute_start_time"`
	AbsoluteEndTime   *string `json:"absolute_end_time"`
	Document          *string `json:"document"`
	ClipPath          *string `json:"clip_path"`
}

func (w wireRecord) record() (Record, bool) {
	if w.Video == nil || w.AbsoluteStartTime == nil || w.AbsoluteEndTime == nil ||
		w.Document == nil || w.ClipPath == nil {
		return Record{}, false
	}
	if lastSegment(*w.ClipPath) == "" {
		return Record{}, false
	}
	return Record{
		Video:             *w.Video,
		AbsoluteStartTime: *w.AbsoluteStartTime,
		AbsoluteEndTime:   *w.AbsoluteEndTime,
		Document:          *w.Document,
		ClipPath:          *w.ClipPath,
	}, true
}

// validRecords keeps well-formed records in response order and reports how
// many were dropped. An entry that is not an object of string fields counts
// as dropped.
func validRecords(raw []json.RawMessage) ([]Record, int) {
	out := make([]Record, 0, len(raw))
	dropped := 0
	for _, entry := range raw {
		var w wireRecord
		if err := json.Unmarshal(entry, &w); err != nil {
			dropped++
			continue
		}
		r, ok := w.record()
		if !ok {
			dropped++
			continue
		}
		out = append(out, r)
	}
	return out, dropped
}

// PlaybackURL joins the final segment of clipPath to the media base address.
func PlaybackURL(mediaBase, clipPath string) string {
	return strings.TrimRight(mediaBase, "/") + "/" + url.PathEscape(lastSegment(clipPath))
}

func lastSegment(p string) string {
	p = strings.TrimRight(strings.ReplaceAll(p, "\\", "/"), "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
