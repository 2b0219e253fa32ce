// Package pbuf contains the client side of a layer's buffer queue.
//
// A [Producer] is the endpoint through which drawn content reaches
// the compositor, and a [Surface] is the local drawable wrapping one.
// The [Endpoint] type is the concrete producer, delivering frames to
// the compositor as datagrams with reed-solomon parity.
package pbuf
