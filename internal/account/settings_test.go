package account

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_PreservesUnknownKeys(t *testing.T) {
	in := []byte(`{"autoReply":false,"dailyMessageLimit":10,"connectionNotes":{"enabled":true},"beta":"x"}`)

	var s Settings
	require.NoError(t, json.Unmarshal(in, &s))

	assert.False(t, s.AutoReply)
	assert.Equal(t, 10, s.DailyMessageLimit)
	require.Len(t, s.Extra, 2)
	assert.JSONEq(t, `{"enabled":true}`, string(s.Extra["connectionNotes"]))

	out, err := json.Marshal(s)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "x", back["beta"])
	assert.Equal(t, false, back["autoReply"])
	assert.Equal(t, float64(10), back["dailyMessageLimit"])
}

func TestSettings_KnownFieldsWinOverExtra(t *testing.T) {
	s := DefaultSettings()
	s.Extra = map[string]json.RawMessage{"autoReply": json.RawMessage(`false`)}

	out, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"autoReply":true`)
}
