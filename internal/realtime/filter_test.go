package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{in: "", want: Filter{}},
		{in: "owner_id=eq.7", want: Filter{Column: "owner_id", Op: OpEq, Values: []string{"7"}}},
		{in: "status=neq.returned", want: Filter{Column: "status", Op: OpNeq, Values: []string{"returned"}}},
		{in: "status=in.(pending, accepted)", want: Filter{Column: "status", Op: OpIn, Values: []string{"pending", "accepted"}}},
		{in: "name=eq.a.b", want: Filter{Column: "name", Op: OpEq, Values: []string{"a.b"}}},
		{in: "status", wantErr: true},
		{in: "=eq.1", wantErr: true},
		{in: "status=like.x", wantErr: true},
		{in: "status=in.pending", wantErr: true},
		{in: "status=in.()", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilterMatch(t *testing.T) {
	record, err := toRecord(struct {
		ID       int64   `json:"id"`
		Status   string  `json:"status"`
		Quantity float64 `json:"quantity"`
		Note     *string `json:"note"`
	}{ID: 12, Status: "pending", Quantity: 2.5})
	require.NoError(t, err)

	tests := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"id=eq.12", true},
		{"id=eq.13", false},
		{"id=neq.13", true},
		{"quantity=eq.2.5", true},
		{"status=in.(accepted,pending)", true},
		{"status=in.(accepted,returned)", false},
		{"note=eq.null", true},
		{"missing=neq.x", false},
	}
	for _, tt := range tests {
		f, err := ParseFilter(tt.filter)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Match(record), tt.filter)
	}
}

func TestFilterString(t *testing.T) {
	for _, s := range []string{"", "a=eq.1", "b=neq.x", "c=in.(1,2)"} {
		f, err := ParseFilter(s)
		require.NoError(t, err)
		assert.Equal(t, s, f.String())
	}
}

func TestToRecordKeepsIntegers(t *testing.T) {
	record, err := toRecord(map[string]int64{"id": 9007199254740993})
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), record["id"])
}
