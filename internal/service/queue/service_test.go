package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuitora/tuitora-gateway/internal/model"
)

func TestPlan(t *testing.T) {
	rows, out := plan(7, []model.Recipient{
		{Phone: "0711000001", Name: "Amina"},
		{Phone: "bogus"},
		{Phone: "+254711000001", Name: "Amina again"},
		{Phone: "0711000002", Name: "Baraka"},
	}, "Dear {name}, report cards are ready.")

	require.Len(t, rows, 2)
	assert.Equal(t, "+254711000001", rows[0].Phone)
	assert.Equal(t, "Dear Amina, report cards are ready.", rows[0].Text)
	assert.Equal(t, int64(7), rows[0].SchoolID)
	assert.Equal(t, 1, rows[0].Segments)
	assert.Equal(t, model.StatusQueued, rows[0].Status)
	assert.Equal(t, "Dear Baraka, report cards are ready.", rows[1].Text)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)

	require.Len(t, out.Queued, 2)
	assert.Equal(t, rows[1].ID, out.Queued[1].ID)
	require.Len(t, out.Rejected, 1)
	assert.Equal(t, "bogus", out.Rejected[0].Recipient)
	assert.False(t, out.Rejected[0].Success)
}

func TestPlan_AllInvalid(t *testing.T) {
	rows, out := plan(1, []model.Recipient{{Phone: ""}}, "hi")
	assert.Empty(t, rows)
	assert.Empty(t, out.Queued)
	assert.Len(t, out.Rejected, 1)
}
