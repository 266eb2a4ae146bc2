package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooseBool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{raw: `true`, want: true},
		{raw: `false`, want: false},
		{raw: `"true"`, want: true},
		{raw: `"false"`, want: false},
		{raw: `"1"`, want: true},
		{raw: `"yes"`, want: false},
		{raw: `1`, want: false},
		{raw: `null`, want: false},
		{raw: `{"x": 1}`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var b looseBool
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &b), "looseBool must never fail")
			assert.Equal(t, tt.want, bool(b))
		})
	}
}

func TestLooseInt64(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: `42`, want: 42},
		{raw: `"42"`, want: 42},
		{raw: `42.0`, want: 42},
		{raw: `null`, want: 0},
		{raw: `-7`, want: -7},
		{raw: `"abc"`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var n looseInt64
			err := json.Unmarshal([]byte(tt.raw), &n)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, int64(n))
		})
	}
}
