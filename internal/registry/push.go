package registry

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// PushOptions describes one `oras push` invocation (§4.E "Push").
type PushOptions struct {
	Registry    string
	Repo        string
	Tag         string
	Files       []string
	Annotations map[string]string
}

// StandardAnnotations builds the org.opencontainers.image.* annotations
// §4.E names.
func StandardAnnotations(description, licenses, title, url, vendor, version string, created time.Time) map[string]string {
	return map[string]string{
		"org.opencontainers.image.created":     created.UTC().Format(time.RFC3339),
		"org.opencontainers.image.description": description,
		"org.opencontainers.image.licenses":    licenses,
		"org.opencontainers.image.title":       title,
		"org.opencontainers.image.url":         url,
		"org.opencontainers.image.vendor":      vendor,
		"org.opencontainers.image.version":     version,
	}
}

// ProjectAnnotations builds the dev.pkgforge.soar.* annotations §4.E names.
func ProjectAnnotations(pkg, pkgID, pkgType, version, buildID, buildGHA, buildScript string, pushDate time.Time) map[string]string {
	return map[string]string{
		"dev.pkgforge.soar.pkg":          pkg,
		"dev.pkgforge.soar.pkg_id":       pkgID,
		"dev.pkgforge.soar.pkg_type":     pkgType,
		"dev.pkgforge.soar.version":      version,
		"dev.pkgforge.soar.push_date":    pushDate.UTC().Format(time.RFC3339),
		"dev.pkgforge.soar.build_id":     buildID,
		"dev.pkgforge.soar.build_gha":    buildGHA,
		"dev.pkgforge.soar.build_script": buildScript,
	}
}

// lookPath is overridable in tests.
var lookPath = exec.LookPath

// requireTool fails fast with KindToolAbsent instead of a bare exec error,
// per §7 "tool-absent ... surfaced as its own kind".
func requireTool(name string) error {
	if _, err := lookPath(name); err != nil {
		return xerrs.New(xerrs.KindToolAbsent, fmt.Sprintf("%s not found on PATH", name))
	}
	return nil
}

// Push shells out to `oras push`, the external collaborator named by §4.E.
func Push(ctx context.Context, opts PushOptions) error {
	if err := requireTool("oras"); err != nil {
		return err
	}
	args := []string{
		"push",
		"--disable-path-validation",
		"--config", "/dev/null:application/vnd.oci.empty.v1+json",
	}
	for k, v := range opts.Annotations {
		args = append(args, "--annotation", fmt.Sprintf("%s=%s", k, v))
	}
	ref := fmt.Sprintf("%s/%s:%s", opts.Registry, opts.Repo, opts.Tag)
	args = append(args, ref)
	args = append(args, opts.Files...)

	cmd := exec.CommandContext(ctx, "oras", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return xerrs.Wrap(xerrs.KindRegistry, fmt.Sprintf("oras push failed: %s", out), err)
	}
	return nil
}

// Login shells out to `oras login`, the credential boundary named by §4.E.
func Login(ctx context.Context, registry, username, password string) error {
	if err := requireTool("oras"); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, "oras", "login", registry, "--username", username, "--password-stdin")
	cmd.Stdin = strings.NewReader(password)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return xerrs.Wrap(xerrs.KindRegistry, fmt.Sprintf("oras login failed: %s", out), err)
	}
	return nil
}
