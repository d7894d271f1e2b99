package zipstream

import (
	"bytes"
	"fmt"
	"hash"
	"hash/crc32"

	"github.com/klauspost/compress/flate"
)

// currentEntry is the transient state kept open while one archive entry is
// being written: its in-progress fileMetadata, a running CRC-32, and a
// DEFLATE compressor whose not-yet-drained output accumulates in buf.
//
// The compressor owns buf's contents until drain is called; drain takes
// ownership of the accumulated bytes and leaves the compressor with a fresh
// empty buffer.
type currentEntry struct {
	meta       fileMetadata
	crc        hash.Hash32
	buf        *bytes.Buffer
	compressor *flate.Writer
}

// newCurrentEntry opens a new entry pipeline for name at the given archive
// offset.
func newCurrentEntry(name string, offset uint32) *currentEntry {
	buf := new(bytes.Buffer)
	// DefaultCompression is zlib level 6.
	fw, _ := flate.NewWriter(buf, flate.DefaultCompression)
	return &currentEntry{
		meta:       fileMetadata{name: name, offset: offset},
		crc:        crc32.NewIEEE(),
		buf:        buf,
		compressor: fw,
	}
}

// write runs one Write call's worth of pipeline steps: it feeds chunk to the
// CRC-32 and the compressor, then drains whatever compressed output the
// compressor produced. The returned slice is newly drained output ready to
// hand to the sink; it may be empty, since DEFLATE buffers internally and
// is not required to emit anything for any given input.
func (e *currentEntry) write(chunk []byte) ([]byte, error) {
	if uint64(e.meta.uncompressedSize)+uint64(len(chunk)) > uint32max {
		return nil, fmt.Errorf("%w: entry %q uncompressed size", ErrOverflow, e.meta.name)
	}
	e.meta.uncompressedSize += uint32(len(chunk))
	e.crc.Write(chunk)
	if _, err := e.compressor.Write(chunk); err != nil {
		return nil, err
	}
	return e.drain(), nil
}

// finish flushes and closes the compressor, finalizes the CRC-32 into
// e.meta, and returns any remaining compressed output.
func (e *currentEntry) finish() ([]byte, error) {
	if err := e.compressor.Close(); err != nil {
		return nil, err
	}
	out := e.drain()
	e.meta.crc32 = e.crc.Sum32()
	return out, nil
}

// drain takes ownership of e.buf's accumulated bytes, replacing it with an
// empty buffer, and adds the drained length to the entry's compressed size.
// Overflow here is not returned as an error since it would require silently
// truncating already-produced compressor output; Writer checks the same
// bound before it ever reaches this size, via write's uncompressed-size
// check and the session's running bytesWritten check.
func (e *currentEntry) drain() []byte {
	if e.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	e.buf.Reset()
	e.meta.compressedSize += uint32(len(out))
	return out
}
