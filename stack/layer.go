// Package stack provides the generic protocol-layer framework the
// Ethernet and IPv4 layers (Dispatcher) and the ARP decoder and ICMP layer
// (Publisher) embed: frame dispatch with first-consumer-wins semantics and
// upward data fan-out
// (spec.md §4.1). Downward emission is a direct method call on the layer
// below (e.g. `h.ipv4.Send(...)`), not a registered callback.
package stack

// Sender sends an encoded frame to the layer below — the wire, or the
// next lower protocol layer.
type Sender[Frame any] interface {
	SendFrame(frame Frame)
}

// SenderFunc adapts a plain function to a Sender.
type SenderFunc[Frame any] func(Frame)

// SendFrame implements Sender.
func (f SenderFunc[Frame]) SendFrame(frame Frame) { f(frame) }

// Dispatcher implements the composition rule of spec.md §4.1: an inbound
// frame is offered to each registered hook in registration order; the
// first hook that reports consumed=true stops propagation. A layer
// registers its own decode-and-publish logic as a hook, and an ordinary
// subprotocol or a responder subprotocol (Router-ARP, Router-DHCP) can
// register additional hooks against the same frame type without the
// framework needing to know the difference.
type Dispatcher[Frame any] struct {
	hooks []func(Frame) bool
}

// OnReceiveFrame registers a frame-inspection callback. A responder
// subprotocol that must run before the layer's own decode logic should be
// registered first — order is registration order, not insertion priority.
func (d *Dispatcher[Frame]) OnReceiveFrame(hook func(Frame) bool) {
	d.hooks = append(d.hooks, hook)
}

// Dispatch offers frame to each registered hook in order, stopping at the
// first one that consumes it, and reports whether any hook did.
func (d *Dispatcher[Frame]) Dispatch(frame Frame) (consumed bool) {
	for _, hook := range d.hooks {
		if hook(frame) {
			return true
		}
	}
	return false
}

// Reset clears every registered hook. Used during adapter teardown
// (spec.md §5's "tears down all protocol handlers, clearing their
// subscription lists recursively").
func (d *Dispatcher[Frame]) Reset() {
	d.hooks = nil
}

// Publisher fans decoded data out to upward subscribers (spec.md §4.1's
// "deliver decoded data to upward subscribers").
type Publisher[Data any] struct {
	subscribers []func(Data)
}

// Subscribe registers f to be called with every value Publish emits.
func (p *Publisher[Data]) Subscribe(f func(Data)) {
	p.subscribers = append(p.subscribers, f)
}

// Publish delivers data to every subscriber, in registration order.
func (p *Publisher[Data]) Publish(data Data) {
	for _, f := range p.subscribers {
		f(data)
	}
}

// Reset clears every registered subscriber.
func (p *Publisher[Data]) Reset() {
	p.subscribers = nil
}
