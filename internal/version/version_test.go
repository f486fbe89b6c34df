package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSemanticVersion(t *testing.T) {
	require.Equal(t, "0.3.0", semanticVersion(""))
	require.Equal(t, "0.3.0-rc.1", semanticVersion("rc.1"))
	require.Equal(t, "0.3.0-rc1", semanticVersion("r c!1"))
	require.Equal(t, "0.3.0-beta", Version())
}

func TestRichVersion(t *testing.T) {
	old := CommitHash
	t.Cleanup(func() { CommitHash = old })

	CommitHash = ""
	require.Equal(t, Version(), RichVersion())

	CommitHash = " abc123\n"
	require.Equal(t, Version()+" commit_hash=abc123", RichVersion())
}
