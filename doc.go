// Package prism contains the client-side APIs for the prism compositor.
//
// The compositor is a separate process that owns every on-screen layer.
// Clients never touch layer state directly;
// they hold a [Control] referencing a remote layer,
// and forward property changes through a [Conn] session.
// Drawn content reaches the compositor separately,
// through the layer's buffer producer endpoint in the pbuf package.
//
// The pconn package provides the concrete session over QUIC.
package prism
