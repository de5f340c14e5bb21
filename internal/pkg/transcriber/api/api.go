package api

import "encoding/json"

// Word is one recognized word
type Word struct {
	Word              string   `json:"word"`
	PunctuatedWord    string   `json:"punctuated_word"`
	Start             float64  `json:"start"`
	End               float64  `json:"end"`
	Confidence        float64  `json:"confidence"`
	Speaker           *int     `json:"speaker,omitempty"`
	SpeakerConfidence *float64 `json:"speaker_confidence,omitempty"`
}

// Alternative is one recognition hypothesis of a channel
type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

// Channel of the audio
type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Utterance is a diarized speech fragment
type Utterance struct {
	ID         string  `json:"id,omitempty"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
	Channel    int     `json:"channel"`
	Transcript string  `json:"transcript"`
	Speaker    *int    `json:"speaker,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

// Results part of the service response
type Results struct {
	Channels   []Channel   `json:"channels"`
	Utterances []Utterance `json:"utterances,omitempty"`
}

// Result is the speech service response.
// Raw keeps the response body as returned by the service
type Result struct {
	Results    Results         `json:"results"`
	Utterances []Utterance     `json:"utterances,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// Words returns words of the first alternative of the first channel
func (r *Result) Words() []Word {
	if r == nil || len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil
	}
	return r.Results.Channels[0].Alternatives[0].Words
}

// AllUtterances returns utterances from results, or the top level ones if results has none
func (r *Result) AllUtterances() []Utterance {
	if r == nil {
		return nil
	}
	if len(r.Results.Utterances) > 0 {
		return r.Results.Utterances
	}
	return r.Utterances
}
