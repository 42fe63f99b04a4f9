// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package buffer provides Prependable, a buffer that grows backwards so
// each enclosing protocol layer can prepend its own header without
// copying the payload it wraps.
package buffer

// Prependable is a buffer that grows backwards, that is, more data can be
// prepended to it. It is useful when building networking packets, where
// each protocol adds its own header to the front of the higher-level
// protocol header and payload; for example, TCP prepends its header to the
// payload, then IPv4 prepends its own, then Ethernet.
type Prependable struct {
	// buf is the buffer backing the prependable buffer.
	buf []byte

	// usedIdx is the index where the used part of the buffer begins.
	usedIdx int
}

// NewPrependable allocates a new prependable buffer with the given total
// capacity.
func NewPrependable(size int) Prependable {
	return Prependable{buf: make([]byte, size), usedIdx: size}
}

// Prepend reserves the requested space in front of the buffer, returning a
// slice that represents the reserved space. It returns nil if size would
// overrun the buffer's remaining capacity.
func (p *Prependable) Prepend(size int) []byte {
	if size > p.usedIdx {
		return nil
	}
	p.usedIdx -= size
	return p.buf[p.usedIdx:][:size:size]
}

// View returns the bytes prepended so far, in order from the outermost
// header to the payload.
func (p *Prependable) View() []byte {
	return p.buf[p.usedIdx:]
}

// UsedLength returns the number of bytes used so far.
func (p *Prependable) UsedLength() int {
	return len(p.buf) - p.usedIdx
}
