// Copyright 2016 The Netstack Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package buffer

import "testing"

func TestPrependableLayering(t *testing.T) {
	p := NewPrependable(32)

	payload := p.Prepend(10)
	for i := range payload {
		payload[i] = byte(i)
	}

	ipHeader := p.Prepend(8)
	for i := range ipHeader {
		ipHeader[i] = 0xAA
	}

	ethHeader := p.Prepend(14)
	for i := range ethHeader {
		ethHeader[i] = 0xBB
	}

	if got, want := p.UsedLength(), 14+8+10; got != want {
		t.Fatalf("UsedLength() = %d, want %d", got, want)
	}

	view := p.View()
	if len(view) != 32 {
		t.Fatalf("View() length = %d, want %d", len(view), 32)
	}
	for i := 0; i < 14; i++ {
		if view[i] != 0xBB {
			t.Errorf("view[%d] = %#x, want 0xBB (ethernet header)", i, view[i])
		}
	}
	for i := 14; i < 22; i++ {
		if view[i] != 0xAA {
			t.Errorf("view[%d] = %#x, want 0xAA (ip header)", i, view[i])
		}
	}
	for i := 22; i < 32; i++ {
		if want := byte(i - 22); view[i] != want {
			t.Errorf("view[%d] = %#x, want %#x (payload)", i, view[i], want)
		}
	}
}

func TestPrependableOverflow(t *testing.T) {
	p := NewPrependable(4)
	if got := p.Prepend(5); got != nil {
		t.Errorf("Prepend(5) on a 4-byte buffer = %v, want nil", got)
	}
	if got := p.Prepend(4); got == nil {
		t.Errorf("Prepend(4) on a 4-byte buffer = nil, want a slice")
	}
	if got := p.Prepend(1); got != nil {
		t.Errorf("Prepend(1) after the buffer is exhausted = %v, want nil", got)
	}
}
