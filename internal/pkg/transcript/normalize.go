package transcript

import (
	"github.com/airenas/meetnotes/internal/pkg/api"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
)

// NoSpeaker is the speaker value of words without diarization
const NoSpeaker = -1

// Normalize groups consecutive words of the same speaker into segments.
// Order is kept, an empty input gives an empty, non nil slice
func Normalize(words []tapi.Word) []api.Segment {
	res := make([]api.Segment, 0)
	for _, w := range words {
		sp := speaker(w)
		if l := len(res); l > 0 && res[l-1].Speaker == sp {
			res[l-1].Text += " " + w.PunctuatedWord
			continue
		}
		res = append(res, api.Segment{Speaker: sp, Start: w.Start, Text: w.PunctuatedWord})
	}
	return res
}

func speaker(w tapi.Word) int {
	if w.Speaker == nil {
		return NoSpeaker
	}
	return *w.Speaker
}
