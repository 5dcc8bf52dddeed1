package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscript_Normalize(t *testing.T) {
	tr := Transcript{Utterances: []Utterance{
		{Start: 5, End: 8, Text: "  second  "},
		{Start: 0, End: 3, Text: "first"},
		{Start: 2.5, End: 2.5, Text: "zero length"},
		{Start: 9, End: 12, Text: "   "},
		{Start: 7, End: 10, Text: "overlaps second"},
	}}
	tr.Normalize()

	require.Len(t, tr.Utterances, 3)
	assert.Equal(t, "first", tr.Utterances[0].Text)
	assert.Equal(t, "second", tr.Utterances[1].Text)
	// Overlap clamped to the previous end.
	assert.Equal(t, 8.0, tr.Utterances[2].Start)
	assert.Equal(t, 10.0, tr.Utterances[2].End)
	for i, u := range tr.Utterances {
		assert.Equal(t, i, u.ID)
	}
	assert.NoError(t, tr.Validate())
}

func TestTranscript_Validate(t *testing.T) {
	tests := []struct {
		name       string
		utterances []Utterance
		wantErr    string
	}{
		{
			name:       "empty",
			utterances: nil,
			wantErr:    "no utterances",
		},
		{
			name: "ordered",
			utterances: []Utterance{
				{Start: 0, End: 2, Text: "a"},
				{Start: 2, End: 4, Text: "b"},
				{Start: 4.5, End: 6, Text: "c"},
			},
		},
		{
			name: "inverted window",
			utterances: []Utterance{
				{Start: 3, End: 2, Text: "a"},
			},
			wantErr: "start",
		},
		{
			name: "overlap",
			utterances: []Utterance{
				{Start: 0, End: 5, Text: "a"},
				{Start: 4, End: 6, Text: "b"},
			},
			wantErr: "overlaps",
		},
		{
			name: "non-increasing start",
			utterances: []Utterance{
				{Start: 2, End: 3, Text: "a"},
				{Start: 2, End: 4, Text: "b"},
			},
			wantErr: "not increasing",
		},
		{
			name: "negative start",
			utterances: []Utterance{
				{Start: -1, End: 3, Text: "a"},
			},
			wantErr: "negative",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := Transcript{Utterances: tt.utterances}
			err := tr.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
