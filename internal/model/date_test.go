package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateLayouts(t *testing.T) {
	for _, in := range []string{
		"2024-06-01",
		"2024-06-01T15:04:05Z",
		"06/01/2024",
		"Sat, 01 Jun 2024 10:00:00 GMT",
	} {
		d, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, "2024-06-01", d.String(), in)
	}

	_, err := ParseDate("not a date")
	assert.Error(t, err)
}

func TestDateJSON(t *testing.T) {
	var in struct {
		Start Date  `json:"start"`
		End   *Date `json:"end,omitempty"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2024-03-05T10:00:00+02:00"}`), &in))
	assert.Equal(t, "2024-03-05", in.Start.String())
	assert.Nil(t, in.End)

	out, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2024-03-05"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"start":5}`), &in))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan("2023-12-31"))
	assert.Equal(t, "2023-12-31", d.String())

	require.NoError(t, d.Scan(time.Date(2023, 1, 2, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "2023-01-02", d.String())

	var n NullDate
	require.NoError(t, n.Scan(nil))
	assert.Nil(t, n.Ptr())
	require.NoError(t, n.Scan([]byte("2024-02-29")))
	require.NotNil(t, n.Ptr())
	assert.Equal(t, "2024-02-29", n.Ptr().String())
}
