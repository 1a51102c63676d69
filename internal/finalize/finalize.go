// Package finalize implements the artifact finalizer of §4.C: icon,
// AppStream and desktop-entry normalization, checksum manifest generation,
// and optional minisign signing, grounded on distri/internal/build's
// copy/rename helpers and the teacher's atomic-write use of renameio.
package finalize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"github.com/zeebo/blake3"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// MinIconSize is the minimum byte size an icon must reach to be kept
// verbatim (§4.C step 1).
const MinIconSize = 64

// MinDesktopSize is the minimum byte size a .desktop file must reach to be
// kept verbatim (§4.C step 3).
const MinDesktopSize = 32

// Options configures one finalize pass over an output directory.
type Options struct {
	OutDir      string
	SbuildPkg   string // {sbuild_pkg} basename shared by icon/desktop/appstream files
	Pkg         string
	PkgType     string // "static"/"dynamic" => ELF default icon; else pkg default icon
	MinisignKey string // path to the minisign secret key; "" disables signing
	KeepTemp    bool   // skip SBUILD_TEMP cleanup (sbuild -k/--keep)
}

var defaultIconURLs = map[bool]string{
	true:  "https://raw.githubusercontent.com/pkgforge/soar/main/assets/bin.default.png",
	false: "https://raw.githubusercontent.com/pkgforge/soar/main/assets/pkg.default.png",
}

func isElfDefault(pkgType string) bool {
	return pkgType == "static" || pkgType == "dynamic"
}

// Run executes the full §4.C pipeline against opts.OutDir.
func Run(ctx context.Context, opts Options) error {
	if err := ensureIcon(ctx, opts); err != nil {
		return err
	}
	ensureAppstream(opts)
	if err := ensureDesktop(opts); err != nil {
		return err
	}
	if !opts.KeepTemp {
		if err := cleanupTemp(opts); err != nil {
			return err
		}
	}
	if err := WriteChecksums(opts.OutDir); err != nil {
		return err
	}
	if opts.MinisignKey != "" {
		if err := SignAll(ctx, opts.OutDir, opts.MinisignKey); err != nil {
			return err
		}
	}
	return nil
}

func ensureIcon(ctx context.Context, opts Options) error {
	pngPath := filepath.Join(opts.OutDir, opts.SbuildPkg+".png")
	svgPath := filepath.Join(opts.OutDir, opts.SbuildPkg+".svg")
	if fileAtLeast(pngPath, MinIconSize) {
		return nil
	}
	if fileAtLeast(svgPath, MinIconSize) {
		return nil
	}
	url := defaultIconURLs[isElfDefault(opts.PkgType)]
	return downloadTo(ctx, url, pngPath)
}

func ensureAppstream(opts Options) {
	for _, ext := range []string{".metainfo.xml", ".appdata.xml"} {
		path := filepath.Join(opts.OutDir, opts.SbuildPkg+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		trimmed := strings.TrimPrefix(string(data), "﻿")
		if strings.HasPrefix(strings.TrimSpace(trimmed), "<?xml") {
			return
		}
		os.Remove(path)
	}
}

func ensureDesktop(opts Options) error {
	path := filepath.Join(opts.OutDir, opts.SbuildPkg+".desktop")
	if fileAtLeast(path, MinDesktopSize) {
		return nil
	}
	content := fmt.Sprintf(
		"[Desktop Entry]\nType=Application\nName=%s\nExec=%s\nIcon=%s\nCategories=Utility;\n",
		opts.Pkg, opts.Pkg, opts.SbuildPkg,
	)
	return renameio.WriteFile(path, []byte(content), 0o644)
}

func cleanupTemp(opts Options) error {
	return os.RemoveAll(filepath.Join(opts.OutDir, "SBUILD_TEMP"))
}

func fileAtLeast(path string, minSize int64) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() >= minSize
}

func downloadTo(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrs.Wrap(xerrs.KindDownload, "building request", err)
	}
	req.Header.Set("User-Agent", "pkgforge/soar")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return xerrs.Wrap(xerrs.KindDownload, "downloading "+url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return xerrs.New(xerrs.KindDownload, fmt.Sprintf("downloading %s: status %d", url, resp.StatusCode))
	}
	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return xerrs.Wrap(xerrs.KindIO, "creating part file", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(part)
		return xerrs.Wrap(xerrs.KindDownload, "streaming download", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return xerrs.Wrap(xerrs.KindIO, "closing part file", err)
	}
	if err := os.Rename(part, dest); err != nil {
		return xerrs.Wrap(xerrs.KindIO, "renaming part file into place", err)
	}
	return nil
}

// WriteChecksums implements §4.C step 5: BLAKE3 hex for every regular file
// in dir except CHECKSUM itself, written as "{relative_path}:{hex}\n" lines.
func WriteChecksums(dir string) error {
	checksumPath := filepath.Join(dir, "CHECKSUM")
	var b strings.Builder
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "CHECKSUM" {
			return nil
		}
		sum, err := blake3File(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(&b, "%s:%s\n", rel, sum)
		return nil
	})
	if err != nil {
		return xerrs.Wrap(xerrs.KindIO, "computing checksums", err)
	}
	return renameio.WriteFile(checksumPath, []byte(b.String()), 0o644)
}

// WriteSidecars writes a .b3sum and .sha256 sidecar for every regular file
// that is not itself a sidecar or the CHECKSUM file (§4.C step 5, optional).
func WriteSidecars(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isSidecarOrChecksum(path) {
			return nil
		}
		b3, err := blake3File(path)
		if err != nil {
			return err
		}
		sha, err := sha256File(path)
		if err != nil {
			return err
		}
		if err := renameio.WriteFile(path+".b3sum", []byte(b3+"\n"), 0o644); err != nil {
			return err
		}
		return renameio.WriteFile(path+".sha256", []byte(sha+"\n"), 0o644)
	})
}

func isSidecarOrChecksum(path string) bool {
	base := filepath.Base(path)
	return base == "CHECKSUM" || strings.HasSuffix(base, ".sig") ||
		strings.HasSuffix(base, ".b3sum") || strings.HasSuffix(base, ".sha256")
}

func blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", xerrs.Wrap(xerrs.KindIO, "opening file for hashing", err)
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", xerrs.Wrap(xerrs.KindIO, "hashing file", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", xerrs.Wrap(xerrs.KindIO, "opening file for hashing", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", xerrs.Wrap(xerrs.KindIO, "hashing file", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SignAll implements §4.C step 6: invoke `minisign -S` for every file under
// dir that is not a .sig/.b3sum/.sha256 sidecar or the CHECKSUM file.
func SignAll(ctx context.Context, dir, secretKeyPath string) error {
	if _, err := exec.LookPath("minisign"); err != nil {
		return xerrs.New(xerrs.KindToolAbsent, "minisign not found on PATH")
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isSidecarOrChecksum(path) {
			return nil
		}
		cmd := exec.CommandContext(ctx, "minisign", "-S", "-s", secretKeyPath, "-m", path)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return xerrs.Wrap(xerrs.KindSigning, fmt.Sprintf("signing %s: %s", path, out), err)
		}
		return nil
	})
}

// VerifyAll checks signatures with `minisign -V`, the symmetric counterpart
// to SignAll. No CLI flag invokes it.
func VerifyAll(ctx context.Context, dir, publicKeyPath string) error {
	if _, err := exec.LookPath("minisign"); err != nil {
		return xerrs.New(xerrs.KindToolAbsent, "minisign not found on PATH")
	}
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isSidecarOrChecksum(path) || strings.HasSuffix(path, ".sig") {
			return nil
		}
		sigPath := path + ".sig"
		if _, err := os.Stat(sigPath); err != nil {
			return nil
		}
		cmd := exec.CommandContext(ctx, "minisign", "-V", "-p", publicKeyPath, "-m", path)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return xerrs.Wrap(xerrs.KindSigning, fmt.Sprintf("verifying %s: %s", path, out), err)
		}
		return nil
	})
}
