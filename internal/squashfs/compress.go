package squashfs

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// zstdCompression is squashfs-tools' compression id 6; the other
// compression ids are defined in ondisk.go.
const zstdCompression = 6

// blockCompressedBit mirrors SQUASHFS_COMPRESSED_BIT_BLOCK: when set on a
// data block's stored size, the block is stored raw rather than compressed
// (squashfs-tools falls back to raw storage whenever compression would not
// shrink the block).
const blockCompressedBit = 1 << 24

// decompress inflates one metadata or data block using the compressor named
// by the superblock's Compression field. mksquashfs defaults to zlib
// ("gzip" in squashfs-tools' own terminology) or, on newer toolchains, zstd;
// those are the two cases real-world AppImages actually exercise, so they're
// the two this reader supports.
func decompress(method uint16, data []byte) ([]byte, error) {
	switch method {
	case zlibCompression:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib: %v", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case zstdCompression:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: %v", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case lzmaCompression, lzoCompression, xzCompression, lz4Compression:
		return nil, fmt.Errorf("squashfs compression id %d (lzma/lzo/xz/lz4) is not supported", method)
	default:
		return nil, fmt.Errorf("unknown squashfs compression id %d", method)
	}
}
