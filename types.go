package zipstream

// fileMetadata is the finalized record of one archived entry: everything
// needed to write its central directory header.
type fileMetadata struct {
	name             string
	offset           uint32 // absolute byte offset of the local file header
	uncompressedSize uint32 // total raw input bytes observed
	compressedSize   uint32 // total DEFLATE output bytes
	crc32            uint32 // IEEE CRC-32 of the raw input
}
