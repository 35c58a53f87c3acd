package diarization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voicedAt(id int, ts float64) Assignment {
	return Assignment{SpeakerID: id, Label: SpeakerLabel(id), Timestamp: ts, Voiced: true}
}

func TestTimelineMergesConsecutiveBlocks(t *testing.T) {
	var tl Timeline
	tl.Add(voicedAt(0, 0), 0.5)
	tl.Add(voicedAt(0, 0.5), 0.5)
	tl.Add(voicedAt(1, 1.0), 0.5)
	tl.Add(voicedAt(1, 1.5), 0.5)
	tl.Add(voicedAt(0, 2.0), 0.5)

	segments := tl.Segments()
	require.Len(t, segments, 3)
	assert.Equal(t, Segment{SpeakerID: 0, Label: "Speaker 1", Start: 0, End: 1}, segments[0])
	assert.Equal(t, Segment{SpeakerID: 1, Label: "Speaker 2", Start: 1, End: 2}, segments[1])
	assert.Equal(t, Segment{SpeakerID: 0, Label: "Speaker 1", Start: 2, End: 2.5}, segments[2])
}

func TestTimelineSilenceSplitsSegments(t *testing.T) {
	var tl Timeline
	tl.Add(voicedAt(0, 0), 0.5)
	tl.Add(Assignment{SpeakerID: 0, Timestamp: 0.5}, 0.5)
	tl.Add(voicedAt(0, 1.0), 0.5)

	segments := tl.Segments()
	require.Len(t, segments, 2)
	assert.Equal(t, 0.5, segments[0].Duration())
	assert.Equal(t, 1.0, segments[1].Start)

	var silent Timeline
	silent.Add(Assignment{Timestamp: 0}, 0.5)
	assert.Empty(t, silent.Segments())
	assert.Empty(t, silent.Totals())
}

func TestTimelineTotalsAndRelabel(t *testing.T) {
	var tl Timeline
	tl.Add(voicedAt(1, 0), 1)
	tl.Add(voicedAt(0, 1), 1)
	tl.Add(voicedAt(0, 2), 1)
	tl.Add(voicedAt(1, 3), 1)

	tl.Relabel([]VoiceProfile{{ID: 1, Label: "Alice"}})

	totals := tl.Totals()
	require.Len(t, totals, 2)
	assert.Equal(t, SpeakerTotal{SpeakerID: 0, Label: "Speaker 1", Segments: 1, Seconds: 2}, totals[0])
	assert.Equal(t, SpeakerTotal{SpeakerID: 1, Label: "Alice", Segments: 2, Seconds: 2}, totals[1])
}
