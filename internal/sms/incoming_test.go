package sms

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIncoming_Form(t *testing.T) {
	body := []byte("from=%2B254711000001&to=22384&text=STOP&id=abc&linkId=L1&date=2025-01-10+08%3A00%3A00&networkCode=63902")
	m, err := ParseIncoming("application/x-www-form-urlencoded", body, nil)
	require.NoError(t, err)

	assert.Equal(t, "+254711000001", m.From)
	assert.Equal(t, "22384", m.To)
	assert.Equal(t, "STOP", m.Text)
	assert.Equal(t, "abc", m.ID)
	assert.Equal(t, "L1", m.LinkID)
	assert.Equal(t, "2025-01-10 08:00:00", m.Date)
	assert.Equal(t, map[string]string{"networkCode": "63902"}, m.Raw)
}

func TestParseIncoming_JSONAliases(t *testing.T) {
	body := []byte(`{"msisdn":"254711000002","shortCode":"22384","Body":"Hello","MessageSid":"SM1","timestamp":1736496000,"extra":{"a":1}}`)
	m, err := ParseIncoming("application/json", body, nil)
	require.NoError(t, err)

	assert.Equal(t, "254711000002", m.From)
	assert.Equal(t, "22384", m.To)
	assert.Equal(t, "Hello", m.Text)
	assert.Equal(t, "SM1", m.ID)
	assert.Equal(t, "1736496000", m.Date)
	assert.Equal(t, `{"a":1}`, m.Raw["extra"])
}

func TestParseIncoming_AliasOrder(t *testing.T) {
	m := FromFields(map[string]string{"From": "second", "from": "first", "sender": "third"})
	assert.Equal(t, "first", m.From)
	assert.Empty(t, m.Raw)
}

func TestParseIncoming_Malformed(t *testing.T) {
	m, err := ParseIncoming("application/json", []byte(`{"from": `), url.Values{"from": {"+254711000003"}})
	assert.Error(t, err)
	assert.Equal(t, "+254711000003", m.From)
	assert.Empty(t, m.Text)
}

func TestParseIncoming_Empty(t *testing.T) {
	m, err := ParseIncoming("", nil, nil)
	require.NoError(t, err)
	assert.Empty(t, m.From)
	assert.Nil(t, m.Raw)
}
