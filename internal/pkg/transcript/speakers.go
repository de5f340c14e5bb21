package transcript

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/airenas/meetnotes/internal/pkg/persistence"
	tapi "github.com/airenas/meetnotes/internal/pkg/transcriber/api"
)

// UniqueSpeakers returns sorted speaker indexes found in utterances
func UniqueSpeakers(utterances []tapi.Utterance) []int {
	set := map[int]bool{}
	for _, u := range utterances {
		if u.Speaker != nil {
			set[*u.Speaker] = true
		}
	}
	res := make([]int, 0, len(set))
	for k := range set {
		res = append(res, k)
	}
	sort.Ints(res)
	return res
}

// InitialSpeakerNames seeds a mapping with nil for every speaker.
// Contacts already associated in existing are kept for the speakers found again.
// Without speakers the existing mapping is returned as is, so nil when nothing was stored
func InitialSpeakerNames(speakers []int, existing persistence.SpeakerNames) persistence.SpeakerNames {
	if len(speakers) == 0 {
		return existing
	}
	res := make(persistence.SpeakerNames, len(speakers))
	for _, s := range speakers {
		k := strconv.Itoa(s)
		res[k] = existing[k]
	}
	return res
}

// Placeholder is the generic speaker name
func Placeholder(index int) string {
	return fmt.Sprintf("Speaker %d", index)
}

// DisplayName resolves a speaker name: contact full name, contact email,
// stored label or the placeholder
func DisplayName(index int, names persistence.SpeakerNames, contacts map[string]*persistence.Contact) string {
	ph := Placeholder(index)
	v := names[strconv.Itoa(index)]
	if v == nil || *v == "" {
		return ph
	}
	if c, ok := contacts[*v]; ok && c != nil {
		if n := c.FullName(); n != "" {
			return n
		}
		if c.Email.Valid && c.Email.String != "" {
			return c.Email.String
		}
		return ph
	}
	if *v != ph {
		return *v
	}
	return ph
}

// ContactIDs returns distinct non empty ids referenced in names
func ContactIDs(names map[string]*string) []string {
	set := map[string]bool{}
	res := make([]string, 0, len(names))
	for _, v := range names {
		if v != nil && *v != "" && !set[*v] {
			set[*v] = true
			res = append(res, *v)
		}
	}
	sort.Strings(res)
	return res
}
