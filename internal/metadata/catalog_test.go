package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkgforge/sbuild/internal/recipe"
)

// §8 size formatting invariant.
func TestFormatBytes(t *testing.T) {
	require.Equal(t, "0 B", formatBytes(0))
	require.Equal(t, "1023 B", formatBytes(1023))
	require.Equal(t, "1.00 KB", formatBytes(1024))
	require.Equal(t, "1.50 KB", formatBytes(1536))
	require.Equal(t, "1.00 MB", formatBytes(1048576))
}

// §8 scenario 4: provides dedup.
func TestSplitProvidesKeepsBaseName(t *testing.T) {
	got := splitProvides([]string{"bat==batcat"}, "bat")
	require.Equal(t, []string{"bat"}, got)
}

func TestSplitProvidesDedup(t *testing.T) {
	got := splitProvides([]string{"bat=>x", "bat==y", "bat:z", "other"}, "fallback")
	require.Equal(t, []string{"bat", "other"}, got)
}

func TestSplitProvidesEmptyFallsBack(t *testing.T) {
	got := splitProvides(nil, "fallback")
	require.Equal(t, []string{"fallback"}, got)
}

func TestParseNoteFlagsOnlySetsDeprecated(t *testing.T) {
	deprecated, notes := parseNoteFlags([]string{
		"[DEPRECATED] use foo instead",
		"[EXTERNAL] mirrored upstream",
		"[NO_INSTALL] ci only",
		"[UNTRUSTED] unverified",
		"[DO NOT RUN] review before use",
		"a normal user-facing note",
	})
	require.True(t, deprecated)
	require.Equal(t, []string{"a normal user-facing note"}, notes)
}

func TestParseNoteFlagsNoMarkers(t *testing.T) {
	deprecated, notes := parseNoteFlags([]string{"plain note"})
	require.False(t, deprecated)
	require.Equal(t, []string{"plain note"}, notes)
}

func TestSeedEntryLeavesUnrelatedFlagsFalse(t *testing.T) {
	rec := &recipe.Recipe{
		Pkg:         "bat",
		PkgID:       "github.com.sharkdp.bat",
		Description: recipe.Description{Simple: "a cat clone"},
		Provides:    []string{"bat", "batcat"},
	}
	e := seedEntry(rec, "bat", "bat")
	require.False(t, e.DesktopIntegration)
	require.False(t, e.Portable)
	require.False(t, e.RecurseProvides)
}

func TestEntryValid(t *testing.T) {
	e := Entry{Pkg: "p", PkgID: "p.id", PkgName: "p", Description: "d", Version: "1.0", DownloadURL: "https://x"}
	require.True(t, e.Valid())
	e.DownloadURL = ""
	require.False(t, e.Valid())
}
