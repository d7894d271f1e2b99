// Copyright 2011 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package zipstream writes a ZIP archive incrementally, one entry at a time,
to a forward-only sink, without knowing any entry's size or CRC-32 in
advance.

Unlike archive/zip and github.com/martin-sucha/zipserve's Archive type, this
package never buffers an entry or seeks backward to patch in its size: sizes
and checksums are deferred to a data descriptor that follows each entry's
compressed payload, per the general-purpose bit 3 mechanism in the ZIP
format (see https://www.pkware.com/appnote). That makes it suitable for
archives whose contents are still being fetched from a remote source while
they are written out.

No ZIP64 support: archives, entries, and entry counts above 2^32-1 (or
2^16-1 entries) are rejected with an overflow error rather than silently
wrapping.
*/
package zipstream
