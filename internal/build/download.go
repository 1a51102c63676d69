package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkgforge/sbuild/internal/xerrs"
)

// Download fetches url into dest with a bounded-memory chunked copy, writing
// first to dest+".part" then atomically renaming into place (§4.B "Download
// behavior").
func Download(ctx context.Context, url, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return xerrs.Wrap(xerrs.KindIO, "creating parent directory", err)
	}
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

// magicExtension sniffs the first bytes of data and returns ".png" or
// ".svg", the two icon formats §4.B's resource staging policy accepts.
func magicExtension(data []byte) (string, bool) {
	if bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}) {
		return ".png", true
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n﻿")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<svg")) {
		return ".svg", true
	}
	return "", false
}
