// Package squashfs reads SquashFS file system images, the format AppImages
// embed their payload in.
//
// This package intentionally only implements a subset of SquashFS. Notably,
// block devices, character devices, FIFOs and sockets are not supported.
package squashfs

// inode contains a block number + offset within that block.
type Inode int64

const (
	zlibCompression = 1 + iota
	lzmaCompression
	lzoCompression
	xzCompression
	lz4Compression
)

const (
	invalidFragment = 0xFFFFFFFF
	invalidXattr    = 0xFFFFFFFF
)

// Explanations partly copied from
// https://dr-emann.github.io/squashfs/squashfs.html#_the_superblock
type superblock struct {
	// Magic is always "hsqs"
	Magic uint32

	// Inodes is the number of inodes stored in the archive.
	Inodes uint32

	// MkfsTime is the last modification time of the archive, which is identical
	// to the creation time, since our archives are immutable.
	MkfsTime int32

	// BlockSize is the size of a data block in bytes.
	// Must be a power of two between 4 KiB and 1 MiB.
	BlockSize uint32

	// Fragments is the number of entries in the fragment table.
	Fragments uint32

	// Compression is an ID designating the compressor
	// used for both data and meta data blocks.
	Compression uint16

	// The log_2 of the block size. If the two fields do not agree,
	// the archive is considered corrupted.
	BlockLog uint16

	Flags uint16

	// NoIds is the number of entries in the ID lookup table.
	NoIds uint16

	// Major is the major version number (4).
	Major uint16

	// Minor is the minor version number (0).
	Minor uint16

	// RootInode is a reference to the inode of the root directory.
	RootInode Inode

	// BytesUsed is the number of bytes used by the archive.
	// Can be less than the actual file size because SquashFS
	// archives must be padded to a multiple of the underlying
	// device block size.
	BytesUsed int64

	// Byte offsets at which the respective id table starts.
	// If the xattr, fragment or export table are absent,
	// the respective field must be set to 0xFFFFFFFFFFFFFFFF.
	IdTableStart        int64
	XattrIdTableStart   int64
	InodeTableStart     int64
	DirectoryTableStart int64
	FragmentTableStart  int64
	LookupTableStart    int64
}

const (
	dirType = 1 + iota
	fileType
	symlinkType
	blkdevType
	chrdevType
	fifoType
	socketType
	// The larger types are used for e.g. sparse files, xattrs, etc.
	ldirType
	lregType
	lsymlinkType
	lblkdevType
	lchrdevType
	lfifoType
	lsocketType
)

// https://dr-emann.github.io/squashfs/squashfs.html#_common_inode_header
type inodeHeader struct {
	InodeType uint16

	// Mode is a bit mask representing Unix file permissions for the inode.
	// This only stores permissions, not the type. The type is reconstructed
	// from the InodeType field.
	Mode uint16

	// Uid is an index into the id table, giving the user id of the owner.
	Uid uint16

	// Gid is an index into the id table, giving the group id of the owner.
	Gid uint16

	// Mtime is the signed number of seconds since the UNIX epoch.
	Mtime int32

	// InodeNumber is a unique inode number.
	// Must be at least 1, at most the inode count from the super block.
	InodeNumber uint32
}

// fileType
//
// https://dr-emann.github.io/squashfs/squashfs.html#_file_inodes
type regInodeHeader struct {
	inodeHeader

	// StartBlock is the full byte offset from the start of the file system,
	// e.g. 96 for first file contents. Not using fragments limits us to
	// 2^32-1-96 (≈ 4GiB) bytes of file contents.
	StartBlock uint32

	// Fragment is an index into the fragment table which describes the fragment
	// block that the tail end of this file is stored in. If fragments are not
	// used, this field is set to 0xFFFFFFFF.
	Fragment uint32

	// Offset is the (uncompressed) offset within the fragment block where the
	// tail end of this file is.
	Offset uint32

	// FileSize is the (uncompressed) size of this file.
	FileSize uint32

	// Followed by a uint32 array of compressed block sizes.
	// See https://dr-emann.github.io/squashfs/squashfs.html#_data_and_fragment_blocks
}

// lregType
//
// https://dr-emann.github.io/squashfs/squashfs.html#_file_inodes
type lregInodeHeader struct {
	inodeHeader

	// StartBlock is the full byte offset from the start of the file system,
	// e.g. 96 for first file contents. Not using fragments limits us to
	// 2^32-1-96 (≈ 4GiB) bytes of file contents.
	StartBlock uint64

	// FileSize is the (uncompressed) size of this file.
	FileSize uint64

	// Sparse is the number of bytes saved by omitting zero bytes. Used in the
	// kernel for sparse file accounting.
	Sparse uint64

	// Nlink is the number of hard links to this node.
	Nlink uint32

	// Fragment is an index into the fragment table which describes the fragment
	// block that the tail end of this file is stored in. If fragments are not
	// used, this field is set to 0xFFFFFFFF.
	Fragment uint32

	// Offset is the (uncompressed) offset within the fragment block where the
	// tail end of this file is.
	Offset uint32

	// Xattr is an index into the Xattr table, or 0xFFFFFFFF if the inode has no
	// extended attributes.
	Xattr uint32

	// Followed by a uint32 array of compressed block sizes.
}

// symlinkType
//
// https://dr-emann.github.io/squashfs/squashfs.html#_symbolic_links
type symlinkInodeHeader struct {
	inodeHeader

	// Nlink is the number of hard links to this symlink.
	Nlink uint32

	// SymlinkSize is the size in bytes of the target path this symlink points
	// to.
	SymlinkSize uint32

	// Followed by a byte array of SymlinkSize bytes. The path is not
	// null-terminated.
}

// dirType
//
// https://dr-emann.github.io/squashfs/squashfs.html#_directory_inodes
type dirInodeHeader struct {
	inodeHeader

	// StartBlock is the block index of the metadata block in the directory
	// table where the entry information starts. This is relative to the
	// directory table location.
	StartBlock uint32

	// Nlink is the number of hard links to this directory.
	Nlink uint32

	// FileSize is the total (uncompressed) size in bytes of the entry listing
	// in the directory table, including headers.
	//
	// This value is 3 bytes larger than the real listing. The Linux kernel
	// creates "." and ".." entries for offsets 0 and 1, and only after 3 looks
	// into the listing, subtracting 3 from the size.
	FileSize uint16

	// Offset is the (uncompressed) offset within the metadata block in the
	// directory table where the directory listing starts.
	Offset uint16

	// ParentInode is the inode number of the parent of this directory. If this
	// is the root directory, ParentInode should be 0.
	ParentInode uint32
}

// ldirType
//
// https://dr-emann.github.io/squashfs/squashfs.html#_directory_inodes
type ldirInodeHeader struct {
	inodeHeader

	// Nlink is the number of hard links to this directory.
	Nlink uint32

	// FileSize is the total (uncompressed) size in bytes of the entry listing
	// in the directory table, including headers.
	//
	// This value is 3 bytes larger than the real listing. The Linux kernel
	// creates "." and ".." entries for offsets 0 and 1, and only after 3 looks
	// into the listing, subtracting 3 from the size.
	FileSize uint32

	// StartBlock is the block index of the metadata block in the directory
	// table where the entry information starts. This is relative to the
	// directory table location.
	StartBlock uint32

	// ParentInode is the inode number of the parent of this directory. If this
	// is the root directory, ParentInode should be 0.
	ParentInode uint32

	// Icount is the number of directory index entries following this inode.
	Icount uint16

	// Offset is the (uncompressed) offset within the metadata block in the
	// directory table where the directory listing starts.
	Offset uint16

	// Xattr is an index into the Xattr table, or 0xFFFFFFFF if the inode has no
	// extended attributes.
	Xattr uint32
}

// https://dr-emann.github.io/squashfs/squashfs.html#_directory_table
type dirHeader struct {
	// Count is the number of entries following the header.
	Count uint32

	// StartBlock is the location of the metadata block in the inode table where
	// the inodes are stored. This is relative to the inode table start from the
	// super block.
	StartBlock uint32

	// InodeOffset is an arbitrary inode number. The entries that follow store
	// their inode number as a difference to this value.
	InodeOffset uint32
}

// https://dr-emann.github.io/squashfs/squashfs.html#_directory_table
type dirEntry struct {
	// Offset is an offset into the uncompressed inode metadata block.
	Offset uint16

	// InodeNumber is the difference of this inode relative to dirHeader.InodeOffset.
	InodeNumber int16

	// EntryType is the inode type. For extended inodes, the basic type is
	// stored here instead.
	EntryType uint16

	// Size is one less than the size of the entry name.
	Size uint16

	// Followed by a byte array of Size+1 bytes.
}

// xattr types
const (
	XattrTypeUser = iota
	XattrTypeTrusted
	XattrTypeSecurity
)

var xattrPrefix = map[int]string{
	XattrTypeUser:     "user.",
	XattrTypeTrusted:  "trusted.",
	XattrTypeSecurity: "security.",
}

type Xattr struct {
	// Type is a prefix id for the key name. If the value that follows is stored
	// out-of-line, the flag 0x0100 is ORed to the type id.
	Type uint16

	FullName string
	Value    []byte
}

type xattrId struct {
	Xattr uint64
	Count uint32
	Size  uint32
}

type xattrTableHeader struct {
	XattrTableStart uint64
	XattrIds        uint32
	Unused          uint32
}

const (
	magic             = 0x73717368
	dataBlockSize     = 131072
	metadataBlockSize = 8192
)
