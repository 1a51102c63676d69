package squashfs

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

func TestDecompressZlib(t *testing.T) {
	want := []byte("the quick brown fox jumps over the lazy dog, repeated for good measure")
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(want); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := decompress(zlibCompression, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecompressZstd(t *testing.T) {
	want := []byte("squashfs data block payload, compressed with zstd this time around")
	zw, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	compressed := zw.EncodeAll(want, nil)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := decompress(zstdCompression, compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecompressUnsupportedCompressor(t *testing.T) {
	if _, err := decompress(lzmaCompression, []byte{0x01, 0x02}); err == nil {
		t.Fatal("expected an error for an unsupported compressor id")
	}
}

func TestDecompressUnknownCompressor(t *testing.T) {
	if _, err := decompress(99, []byte{0x01, 0x02}); err == nil {
		t.Fatal("expected an error for an unknown compressor id")
	}
}
