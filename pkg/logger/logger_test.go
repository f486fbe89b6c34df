package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Level
		wantErr bool
	}{
		{raw: "trace", want: LevelTrace},
		{raw: " DEBUG ", want: LevelDebug},
		{raw: "", want: LevelInfo},
		{raw: "warning", want: LevelWarn},
		{raw: "error", want: LevelError},
		{raw: "loud", want: LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.raw)
		if tt.wantErr {
			require.Error(t, err, tt.raw)
		} else {
			require.NoError(t, err, tt.raw)
		}
		require.Equal(t, tt.want, got, tt.raw)
	}
}

func TestThresholdFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetFlags(0)
	SetLevel(LevelWarn)
	t.Cleanup(func() {
		SetLevel(LevelInfo)
		SetOutput(nil)
	})

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)
	Errorf("shown %d", 4)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown 3")
	require.Contains(t, out, "shown 4")
	require.True(t, Enabled(LevelError))
	require.False(t, Enabled(LevelDebug))
}
