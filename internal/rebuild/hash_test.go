package rebuild

import "testing"

func TestComputeRecipeHashIgnoresBlankLinesAndComments(t *testing.T) {
	a := "pkg: foo\n\n# a comment\nversion: 1.0.0\n"
	b := "pkg: foo\nversion: 1.0.0\n"
	if ComputeRecipeHash(a) != ComputeRecipeHash(b) {
		t.Fatalf("expected hashes to match after stripping blanks/comments")
	}
}

func TestComputeRecipeHashKeepsShebangs(t *testing.T) {
	a := "#!/usr/bin/env bash\necho hi\n"
	b := "echo hi\n"
	if ComputeRecipeHash(a) == ComputeRecipeHash(b) {
		t.Fatalf("expected shebang line to be kept, changing the hash")
	}
}

func TestComputeRecipeHashExcludingVersion(t *testing.T) {
	a := "pkg: foo\nversion: 1.0.0\n"
	b := "pkg: foo\nversion: 2.0.0\n"
	if ComputeRecipeHashExcludingVersion(a) != ComputeRecipeHashExcludingVersion(b) {
		t.Fatalf("expected version bump to not affect the version-excluding hash")
	}
	if ComputeRecipeHash(a) != ComputeRecipeHash(b) {
		return
	}
	t.Fatalf("expected plain hash to differ across version bump")
}

func TestVerifyHash(t *testing.T) {
	content := "pkg: foo\nversion: 1.0.0\n"
	if !VerifyHash(content, ComputeRecipeHash(content)) {
		t.Fatalf("expected VerifyHash to accept its own ComputeRecipeHash output")
	}
	if VerifyHash(content, "deadbeef") {
		t.Fatalf("expected VerifyHash to reject a mismatched hash")
	}
}
