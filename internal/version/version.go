// Package version defines chatsession version information and build metadata.
//
// CommitHash should be set using -ldflags during compilation.
package version

import (
	"fmt"
	"strings"
)

// CommitHash stores the current git commit hash of this build.
var CommitHash string

// semanticAlphabet is the allowed characters from the semantic versioning
// guidelines for pre-release version and build metadata strings.
const semanticAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	appMajor uint = 0
	appMinor uint = 3
	appPatch uint = 0

	// appPreRelease MUST only contain characters from semanticAlphabet.
	appPreRelease = "beta"
)

// Version returns the application version per semantic versioning 2.0.0.
func Version() string {
	return semanticVersion(appPreRelease)
}

// RichVersion returns the semantic version along with the commit hash when
// it was stamped into the build.
func RichVersion() string {
	v := Version()
	if hash := normalize(strings.TrimSpace(CommitHash)); hash != "" {
		return fmt.Sprintf("%s commit_hash=%s", v, hash)
	}
	return v
}

func semanticVersion(preRelease string) string {
	v := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
	if pre := normalize(preRelease); pre != "" {
		v = fmt.Sprintf("%s-%s", v, pre)
	}
	return v
}

// normalize strips characters not present in semanticAlphabet.
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(semanticAlphabet, r) {
			return r
		}
		return -1
	}, s)
}
