package build

import (
	"io"
	"os"

	"github.com/pkgforge/sbuild/internal/squashfs"
	"github.com/pkgforge/sbuild/internal/xerrs"
)

// ExtractAppImage implements §4.B's "Extraction (AppImage)" stage: it locates
// the squashfs image embedded after the AppImage runtime stub and pulls the
// icon, .desktop file and AppStream metadata out of it into outDir.
func ExtractAppImage(artifactPath, outDir, sbuildPkg string) (squashfs.Assets, error) {
	f, err := os.Open(artifactPath)
	if err != nil {
		return squashfs.Assets{}, xerrs.Wrap(xerrs.KindBuild, "opening AppImage for extraction", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return squashfs.Assets{}, xerrs.Wrap(xerrs.KindIO, "statting AppImage", err)
	}

	offset, err := squashfs.FindOffset(f, fi.Size())
	if err != nil {
		return squashfs.Assets{}, xerrs.Wrap(xerrs.KindBuild, "locating embedded squashfs image", err)
	}

	section := io.NewSectionReader(f, offset, fi.Size()-offset)
	reader, err := squashfs.NewReader(section)
	if err != nil {
		return squashfs.Assets{}, xerrs.Wrap(xerrs.KindBuild, "opening embedded squashfs image", err)
	}

	assets, err := squashfs.ExtractAssets(reader, outDir, sbuildPkg)
	if err != nil {
		return squashfs.Assets{}, xerrs.Wrap(xerrs.KindBuild, "extracting AppImage metadata", err)
	}
	return assets, nil
}
