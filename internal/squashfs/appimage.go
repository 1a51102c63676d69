package squashfs

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// squashfsMagic is the little-endian "hsqs" magic every squashfs superblock
// begins with; an AppImage embeds the image after its ELF+runtime prefix,
// so the image is located by scanning for this magic rather than assumed
// to start at offset 0.
var squashfsMagic = []byte{0x68, 0x73, 0x71, 0x73}

// FindOffset scans r for the squashfs superblock magic and returns its
// byte offset, for AppImages where the filesystem is appended after an ELF
// runtime stub (§4.B "Extraction (AppImage)").
func FindOffset(r io.ReaderAt, fileSize int64) (int64, error) {
	const chunk = 1 << 20
	buf := make([]byte, chunk+len(squashfsMagic)-1)
	for off := int64(0); off < fileSize; off += chunk {
		n, err := r.ReadAt(buf, off)
		if err != nil && err != io.EOF {
			return 0, err
		}
		if idx := bytes.Index(buf[:n], squashfsMagic); idx >= 0 {
			return off + int64(idx), nil
		}
	}
	return 0, fmt.Errorf("squashfs: no superblock magic found")
}

// Assets is the set of auxiliary files §4.B's AppImage extraction pulls out
// of the embedded squashfs image.
type Assets struct {
	IconPath     string // includes the .png/.svg extension picked from the icon's magic bytes
	DesktopPath  string
	AppstreamPath string
}

// ExtractAssets finds the .DirIcon target (or the first *.png/*.svg),
// the first *.desktop file, and the first *appdata.xml/*metainfo.xml file
// in the squashfs image rooted at r, writing each to outDir with the
// sbuildPkg basename per §4.B.
func ExtractAssets(r *Reader, outDir, sbuildPkg string) (Assets, error) {
	var assets Assets
	root := r.RootInode()
	entries, err := r.Readdir(root)
	if err != nil {
		return assets, fmt.Errorf("reading squashfs root: %w", err)
	}

	iconInode, iconName, iconFound := findIcon(r, root, entries)
	if iconFound {
		data, err := readWhole(r, iconInode)
		if err != nil {
			return assets, err
		}
		ext := extensionForMagic(data)
		dest := filepath.Join(outDir, sbuildPkg+ext)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return assets, err
		}
		assets.IconPath = dest
	}
	_ = iconName

	for _, fi := range entries {
		name := fi.Name()
		switch {
		case strings.HasSuffix(name, ".desktop") && assets.DesktopPath == "":
			inode := fi.Sys().(*FileInfo).Inode
			data, err := readWhole(r, inode)
			if err != nil {
				return assets, err
			}
			dest := filepath.Join(outDir, sbuildPkg+".desktop")
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return assets, err
			}
			assets.DesktopPath = dest
		case (strings.HasSuffix(name, "appdata.xml") || strings.HasSuffix(name, "metainfo.xml")) && assets.AppstreamPath == "":
			inode := fi.Sys().(*FileInfo).Inode
			data, err := readWhole(r, inode)
			if err != nil {
				return assets, err
			}
			suffix := ".appdata.xml"
			if strings.HasSuffix(name, "metainfo.xml") {
				suffix = ".metainfo.xml"
			}
			dest := filepath.Join(outDir, sbuildPkg+suffix)
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return assets, err
			}
			assets.AppstreamPath = dest
		}
	}
	return assets, nil
}

// findIcon resolves .DirIcon (a symlink, per the AppImage convention) to
// its target inode, falling back to the first *.png/*.svg at the root.
func findIcon(r *Reader, root Inode, entries []os.FileInfo) (Inode, string, bool) {
	for _, fi := range entries {
		if fi.Name() == ".DirIcon" {
			inode := fi.Sys().(*FileInfo).Inode
			if fi.Mode()&os.ModeSymlink != 0 {
				target, err := r.ReadLink(inode)
				if err == nil {
					if resolved, err := r.LookupPath(target); err == nil {
						return resolved, target, true
					}
				}
				continue
			}
			return inode, ".DirIcon", true
		}
	}
	var fallback os.FileInfo
	for _, fi := range entries {
		if strings.HasSuffix(fi.Name(), ".png") || strings.HasSuffix(fi.Name(), ".svg") {
			fallback = fi
			break
		}
	}
	if fallback == nil {
		return Inode(0), "", false
	}
	return fallback.Sys().(*FileInfo).Inode, fallback.Name(), true
}

func readWhole(r *Reader, inode Inode) ([]byte, error) {
	sr, err := r.FileReader(inode)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(sr)
}

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func extensionForMagic(data []byte) string {
	if len(data) >= 4 && bytes.Equal(data[:4], pngMagic) {
		return ".png"
	}
	return ".svg"
}
