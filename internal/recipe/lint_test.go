package recipe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validRecipe = `#!/SBUILD
_disabled: false
pkg: testpkg
pkg_id: github.com.example.testpkg
description: "a test package"
src_url:
  - https://example.com/testpkg.tar.gz
x_exec:
  shell: sh
  run: |
    echo building
`

func withFakeShell(t *testing.T) {
	t.Helper()
	orig := LookPath
	LookPath = func(file string) (string, error) { return "/bin/" + file, nil }
	t.Cleanup(func() { LookPath = orig })
}

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "recipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLintValidRecipe(t *testing.T) {
	withFakeShell(t)
	path := writeTemp(t, validRecipe)

	res, err := Lint(context.Background(), path, Options{SkipShellcheck: true})
	require.NoError(t, err)
	require.Equal(t, "testpkg", res.Recipe.Pkg)
	require.Equal(t, []string{"https://example.com/testpkg.tar.gz"}, res.Recipe.SrcURL)
}

func TestLintDuplicateTopLevelKeyFails(t *testing.T) {
	withFakeShell(t)
	dup := validRecipe + "\npkg: other\n"
	path := writeTemp(t, dup)

	_, err := Lint(context.Background(), path, Options{SkipShellcheck: true})
	require.Error(t, err)
	var lintErr *LintError
	require.ErrorAs(t, err, &lintErr)
}

func TestLintMissingRequiredFieldFails(t *testing.T) {
	withFakeShell(t)
	path := writeTemp(t, `#!/SBUILD
_disabled: false
pkg: testpkg
description: "a test package"
src_url:
  - https://example.com/testpkg.tar.gz
`)
	_, err := Lint(context.Background(), path, Options{SkipShellcheck: true})
	require.Error(t, err)
}

// §8 invariant: re-linting the canonical output is idempotent.
func TestLintCanonicalIsIdempotent(t *testing.T) {
	withFakeShell(t)
	path := writeTemp(t, validRecipe)

	res, err := Lint(context.Background(), path, Options{SkipShellcheck: true})
	require.NoError(t, err)
	canon := renderCanonical(res.Recipe, res.Comments)

	path2 := writeTemp(t, canon)
	res2, err := Lint(context.Background(), path2, Options{SkipShellcheck: true})
	require.NoError(t, err)
	canon2 := renderCanonical(res2.Recipe, res2.Comments)

	require.Equal(t, canon, canon2)
}

// §8 invariant: sequence fields are deduplicated.
func TestLintDedupesStringArray(t *testing.T) {
	withFakeShell(t)
	path := writeTemp(t, validRecipe+"\nhomepage:\n  - https://example.com\n  - https://example.com\n")

	res, err := Lint(context.Background(), path, Options{SkipShellcheck: true})
	require.NoError(t, err)
	require.Equal(t, []string{"https://example.com"}, res.Recipe.Homepage)
}

func TestLintInvalidURLFails(t *testing.T) {
	withFakeShell(t)
	path := writeTemp(t, `#!/SBUILD
_disabled: false
pkg: testpkg
description: "a test package"
src_url:
  - "not a url"
x_exec:
  shell: sh
  run: echo hi
`)
	_, err := Lint(context.Background(), path, Options{SkipShellcheck: true})
	require.Error(t, err)
}
