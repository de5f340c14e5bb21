package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_MarshalJSON(t *testing.T) {
	title := "t"
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{name: "status", ev: Event{Status: "Processing started", MeetingID: "m1"},
			want: `{"status":"Processing started","meetingId":"m1"}`},
		{name: "summary", ev: Event{Summary: &title, Title: &title, MeetingID: "m1"},
			want: `{"meetingId":"m1","summary":"t","title":"t"}`},
		{name: "error", ev: Event{Error: "err", Details: "olia"},
			want: `{"error":"err","details":"olia"}`},
		{name: "merged", ev: Event{MeetingID: "m1", Payload: map[string]json.RawMessage{"results": []byte(`{"a":1}`)}},
			want: `{"meetingId":"m1","results":{"a":1}}`},
		{name: "fields win", ev: Event{MeetingID: "m1", Payload: map[string]json.RawMessage{"meetingId": []byte(`"m2"`)}},
			want: `{"meetingId":"m1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.ev)
			require.Nil(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestEvent_UnmarshalJSON(t *testing.T) {
	var ev Event
	require.Nil(t, json.Unmarshal([]byte(`{"meetingId":"m1","status":"s","results":{"a":1}}`), &ev))
	assert.Equal(t, "m1", ev.MeetingID)
	assert.Equal(t, "s", ev.Status)
	require.Equal(t, 1, len(ev.Payload))
	assert.JSONEq(t, `{"a":1}`, string(ev.Payload["results"]))
}

func TestEvent_UnmarshalJSON_NoPayload(t *testing.T) {
	var ev Event
	require.Nil(t, json.Unmarshal([]byte(`{"error":"e"}`), &ev))
	assert.Equal(t, "e", ev.Error)
	assert.Nil(t, ev.Payload)
}
