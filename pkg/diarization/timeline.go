package diarization

import "sort"

// Segment is a contiguous run of voiced blocks assigned to one speaker
type Segment struct {
	SpeakerID int     `json:"speaker_id"`
	Label     string  `json:"label"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Duration returns the length of the segment in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Timeline folds per-block assignments into speaker segments. Silent blocks
// close the open segment.
type Timeline struct {
	segments []Segment
	open     bool
}

// Add records one block of the given duration
func (t *Timeline) Add(a Assignment, blockDuration float64) {
	if !a.Voiced {
		t.open = false
		return
	}

	end := a.Timestamp + blockDuration
	if t.open {
		last := &t.segments[len(t.segments)-1]
		if last.SpeakerID == a.SpeakerID {
			last.End = end
			return
		}
	}

	t.segments = append(t.segments, Segment{
		SpeakerID: a.SpeakerID,
		Label:     a.Label,
		Start:     a.Timestamp,
		End:       end,
	})
	t.open = true
}

// Segments returns a copy of the recorded segments
func (t *Timeline) Segments() []Segment {
	return append([]Segment(nil), t.segments...)
}

// Relabel replaces segment labels with the current profile labels
func (t *Timeline) Relabel(profiles []VoiceProfile) {
	labels := make(map[int]string, len(profiles))
	for _, p := range profiles {
		labels[p.ID] = p.Label
	}
	for i := range t.segments {
		if label, ok := labels[t.segments[i].SpeakerID]; ok {
			t.segments[i].Label = label
		}
	}
}

// SpeakerTotal is the talk time of one speaker on a timeline
type SpeakerTotal struct {
	SpeakerID int     `json:"speaker_id"`
	Label     string  `json:"label"`
	Segments  int     `json:"segments"`
	Seconds   float64 `json:"seconds"`
}

// Totals sums talk time per speaker, ordered by speaker id
func (t *Timeline) Totals() []SpeakerTotal {
	byID := make(map[int]*SpeakerTotal)
	for _, s := range t.segments {
		total, ok := byID[s.SpeakerID]
		if !ok {
			total = &SpeakerTotal{SpeakerID: s.SpeakerID, Label: s.Label}
			byID[s.SpeakerID] = total
		}
		total.Segments++
		total.Seconds += s.Duration()
	}

	totals := make([]SpeakerTotal, 0, len(byID))
	for _, total := range byID {
		totals = append(totals, *total)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].SpeakerID < totals[j].SpeakerID
	})
	return totals
}
