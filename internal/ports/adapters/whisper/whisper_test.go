package whisper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultFixture = `{
  "result": {"language": "en"},
  "transcription": [
    {"offsets": {"from": 0, "to": 2500}, "text": " Hello and welcome."},
    {"offsets": {"from": 2500, "to": 6120}, "text": " Today we talk about pipelines."},
    {"offsets": {"from": 6120, "to": 6120}, "text": " "},
    {"offsets": {"from": 6120, "to": 9000}, "text": " Let us begin."}
  ]
}`

func TestParseResult(t *testing.T) {
	tr, err := ParseResult([]byte(resultFixture))
	require.NoError(t, err)

	assert.Equal(t, "en", tr.Language)
	require.Len(t, tr.Utterances, 3)
	assert.Equal(t, "Hello and welcome.", tr.Utterances[0].Text)
	assert.InDelta(t, 0.0, tr.Utterances[0].Start, 1e-9)
	assert.InDelta(t, 2.5, tr.Utterances[0].End, 1e-9)
	assert.InDelta(t, 6.12, tr.Utterances[2].Start, 1e-9)
	assert.InDelta(t, 9.0, tr.Utterances[2].End, 1e-9)
	assert.NoError(t, tr.Validate())
}

func TestParseResult_Garbage(t *testing.T) {
	_, err := ParseResult([]byte("not json"))
	assert.Error(t, err)
}

func TestParseResult_NoUsableUtterances(t *testing.T) {
	_, err := ParseResult([]byte(`{"result": {"language": "en"}, "transcription": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unusable transcript")
}
