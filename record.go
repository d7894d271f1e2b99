// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"encoding/binary"
	"fmt"
)

// Record signatures and fixed lengths, per the PKWARE APPNOTE. There are no
// zip64 counterparts here: this package has no ZIP64 fallback, so exceeding
// these limits is an error rather than a trigger for a wider record format.
const (
	fileHeaderSignature      = 0x04034b50
	dataDescriptorSignature  = 0x08074b50 // de-facto standard; required by OS X Finder
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50

	fileHeaderLen      = 30 // + filename, no extra field
	dataDescriptorLen  = 16 // signature, crc32, compressed size, uncompressed size
	directoryHeaderLen = 46 // + filename, no extra field, no comment
	directoryEndLen    = 22 // no comment

	// versionNeeded is the "version needed to extract" field. 20 (2.0)
	// covers DEFLATE and the data-descriptor bit.
	versionNeeded = 20

	// versionMadeBy encodes the creator host system in the high byte (3 =
	// Unix, per APPNOTE) and the APPNOTE version in the low byte.
	versionMadeBy = 3<<8 | 46

	// flagDataDescriptor is general-purpose bit 3: sizes and CRC-32 are
	// zero in the local header and follow in a data descriptor instead.
	flagDataDescriptor = 0x0008

	// externalAttrsRegularFile is -rw-r--r-- (0644), placed in the high two
	// bytes of the external attributes field per Unix convention. Not
	// configurable per entry; see the Open Question in the design notes.
	externalAttrsRegularFile = 0o100644 << 16

	uint16max = 1<<16 - 1
	uint32max = 1<<32 - 1
)

// Deflate is the only compression method this package writes. There is no
// Store fallback: every entry is always deflated.
const Deflate uint16 = 8

// writeBuf is a cursor over a fixed-size buffer, used to lay out a record's
// fixed-width fields without a separate encoding/binary.Write call per
// field, rather than a separate encoding/binary.Write call per field.
type writeBuf []byte

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

// encodeLocalFileHeader returns the local file header for name. CRC-32,
// compressed size, and uncompressed size are always zero: bit 3 of the
// flags defers them to the data descriptor that follows the entry's
// payload.
func encodeLocalFileHeader(name string) ([]byte, error) {
	if len(name) > uint16max {
		return nil, fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}

	out := make([]byte, fileHeaderLen+len(name))
	b := writeBuf(out)
	b.uint32(fileHeaderSignature)
	b.uint16(versionNeeded)
	b.uint16(flagDataDescriptor)
	b.uint16(Deflate)
	b.uint16(0) // mod time
	b.uint16(0) // mod date
	b.uint32(0) // crc-32 (deferred)
	b.uint32(0) // compressed size (deferred)
	b.uint32(0) // uncompressed size (deferred)
	b.uint16(uint16(len(name)))
	b.uint16(0) // extra field length
	copy(out[fileHeaderLen:], name)
	return out, nil
}

// buildDataDescriptor returns the 16-byte data descriptor that follows an
// entry's compressed payload, carrying the CRC-32 and true sizes that the
// local file header could not.
func buildDataDescriptor(e fileMetadata) ([]byte, error) {
	out := make([]byte, dataDescriptorLen)
	b := writeBuf(out)
	b.uint32(dataDescriptorSignature)
	b.uint32(e.crc32)
	b.uint32(e.compressedSize)
	b.uint32(e.uncompressedSize)
	return out, nil
}

// encodeCentralDirectoryHeader returns one central directory header for a
// finalized entry.
func encodeCentralDirectoryHeader(e fileMetadata) ([]byte, error) {
	out := make([]byte, directoryHeaderLen+len(e.name))
	b := writeBuf(out)
	b.uint32(directoryHeaderSignature)
	b.uint16(versionMadeBy)
	b.uint16(versionNeeded)
	b.uint16(flagDataDescriptor)
	b.uint16(Deflate)
	b.uint16(0) // mod time
	b.uint16(0) // mod date
	b.uint32(e.crc32)
	b.uint32(e.compressedSize)
	b.uint32(e.uncompressedSize)
	b.uint16(uint16(len(e.name)))
	b.uint16(0) // extra field length
	b.uint16(0) // file comment length
	b.uint16(0) // disk number start
	b.uint16(0) // internal file attributes
	b.uint32(externalAttrsRegularFile)
	b.uint32(e.offset)
	copy(out[directoryHeaderLen:], e.name)
	return out, nil
}

// encodeEndOfCentralDirectory returns the 22-byte trailer that lets readers
// locate the central directory from the end of the archive.
func encodeEndOfCentralDirectory(count uint16, cdSize, cdOffset uint32) ([]byte, error) {
	out := make([]byte, directoryEndLen)
	b := writeBuf(out)
	b.uint32(directoryEndSignature)
	b.uint16(0) // number of this disk
	b.uint16(0) // disk with the start of the central directory
	b.uint16(count)
	b.uint16(count)
	b.uint32(cdSize)
	b.uint32(cdOffset)
	b.uint16(0) // archive comment length
	return out, nil
}
