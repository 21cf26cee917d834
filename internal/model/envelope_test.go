package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := `{"id":"01HZX","school_id":7,"sms":{"phone":"+254711000001","text":"hi"}}`

	env, err := DecodeEnvelope([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "01HZX", env.ID)
	assert.Equal(t, int64(7), env.SchoolID)

	// payload column delivered as an escaped JSON string
	quoted, _ := json.Marshal(raw)
	env2, err := DecodeEnvelope(quoted)
	require.NoError(t, err)
	assert.Equal(t, env, env2)

	_, err = DecodeEnvelope([]byte(`{"school_id":7}`))
	assert.ErrorIs(t, err, ErrEmptyEnvelope)

	_, err = DecodeEnvelope([]byte(`{not json`))
	assert.Error(t, err)
}
