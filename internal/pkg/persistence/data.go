package persistence

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

type (

	//Meeting table
	Meeting struct {
		ID                  string
		UserID              string
		AudioFilePath       string
		OriginalFileName    string
		Transcription       []byte
		FormattedTranscript []byte
		Summary             sql.NullString
		SummaryJSON         []byte
		Title               sql.NullString
		SpeakerNames        SpeakerNames
		MeetingAt           *time.Time
		Created             time.Time
		Updated             time.Time
	}

	// TranscriptionUpdate is written after the speech service returns.
	// AudioFilePath and OriginalFileName fill only empty columns
	TranscriptionUpdate struct {
		ID                  string
		UserID              string
		AudioFilePath       string
		OriginalFileName    string
		Transcription       []byte
		FormattedTranscript []byte
		SpeakerNames        SpeakerNames
	}

	// SummaryUpdate is written after the summarization service returns.
	// Invalid Summary or Title leave the stored values untouched.
	SummaryUpdate struct {
		ID                  string
		UserID              string
		OpenAIResponse      string
		FormattedTranscript []byte
		SummaryJSON         []byte
		Summary             sql.NullString
		Title               sql.NullString
	}

	//Contact table, read only here
	Contact struct {
		ID        string
		UserID    string
		FirstName sql.NullString
		LastName  sql.NullString
		Email     sql.NullString
	}
)

// SpeakerNames maps speaker index (as string) to a contact ID or nil
type SpeakerNames map[string]*string

// MarshalJSON writes keys in ascending numeric order
func (sn SpeakerNames) MarshalJSON() ([]byte, error) {
	if sn == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(sn))
	for k := range sn {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessSpeakerKey(keys[i], keys[j]) })
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(sn[k])
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Bytes returns json for storing, nil for a nil map
func (sn SpeakerNames) Bytes() ([]byte, error) {
	if sn == nil {
		return nil, nil
	}
	res, err := sn.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("can't marshal speaker names: %w", err)
	}
	return res, nil
}

// ParseSpeakerNames parses stored json, empty input gives nil
func ParseSpeakerNames(b []byte) (SpeakerNames, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var res map[string]*string
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("can't unmarshal speaker names: %w", err)
	}
	return SpeakerNames(res), nil
}

func lessSpeakerKey(a, b string) bool {
	ia, errA := strconv.Atoi(a)
	ib, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ia < ib
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return a < b
}

// FullName returns first and last names joined
func (c *Contact) FullName() string {
	f, l := c.FirstName.String, c.LastName.String
	switch {
	case f != "" && l != "":
		return f + " " + l
	case f != "":
		return f
	}
	return l
}
