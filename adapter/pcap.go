package adapter

import (
	"bytes"
	"encoding/binary"
	"time"
)

// pcap global and per-record header layout (standard little-endian
// microsecond-resolution format, spec.md §4.10).
const (
	pcapMagic            = 0xA1B2C3D4
	pcapVersionMajor     = 2
	pcapVersionMinor     = 4
	pcapSnapLen          = 0xFFFFFFFF
	pcapLinkTypeEthernet = 1
)

// pcapRecorder accumulates a pcap stream in memory. Nothing in this
// module or the pack provides a pcap-writing library, so this is
// hand-rolled against the documented file format (see DESIGN.md).
type pcapRecorder struct {
	buf bytes.Buffer
}

func newPCAPRecorder() *pcapRecorder {
	r := &pcapRecorder{}
	var hdr [24]byte
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], pcapVersionMajor)
	binary.LittleEndian.PutUint16(hdr[6:8], pcapVersionMinor)
	// thiszone, sigfigs are left zero.
	binary.LittleEndian.PutUint32(hdr[16:20], pcapSnapLen)
	binary.LittleEndian.PutUint32(hdr[20:24], pcapLinkTypeEthernet)
	r.buf.Write(hdr[:])
	return r
}

// record appends one frame as a per-record header (timestamp
// seconds/microseconds, captured length, original length) followed by the
// frame bytes. Captured and original length are always equal: this stack
// never truncates a frame before capture.
func (r *pcapRecorder) record(frame []byte) {
	now := time.Now()
	var rec [16]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(now.Unix()))
	binary.LittleEndian.PutUint32(rec[4:8], uint32(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(frame)))
	binary.LittleEndian.PutUint32(rec[12:16], uint32(len(frame)))
	r.buf.Write(rec[:])
	r.buf.Write(frame)
}

func (r *pcapRecorder) bytes() []byte {
	return append([]byte(nil), r.buf.Bytes()...)
}

// StartCapture begins accumulating a pcap stream of every frame delivered
// inbound to the Ethernet layer (spec.md §4.10). Calling it again
// discards any in-progress capture.
func (a *Adapter) StartCapture() {
	a.capture = newPCAPRecorder()
}

// StopCapture ends capture and returns the accumulated pcap bytes, or nil
// if capture was never started.
func (a *Adapter) StopCapture() []byte {
	if a.capture == nil {
		return nil
	}
	b := a.capture.bytes()
	a.capture = nil
	return b
}

// captureFrame is registered ahead of every other Ethernet hook so it
// observes every frame the Ethernet layer dispatches, whether or not a
// later hook accepts it, without otherwise participating in dispatch
// (spec.md §4.10's "only inbound-to-the-adapter frames are captured").
// Frames shorter than an Ethernet header and VLAN-tagged frames are
// dropped before any hook runs, so they are not captured.
func (a *Adapter) captureFrame(frame []byte) bool {
	if a.capture != nil {
		a.capture.record(frame)
	}
	return false
}
