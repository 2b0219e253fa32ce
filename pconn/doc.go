// Package pconn provides the concrete compositor session:
// a [Conn] implementing the prism.Conn interface over a QUIC
// transport, plus the surface factory that mints layer controls.
//
// Property commands are gathered into a batch and delivered when
// the session flushes; surface creation and frame stats reads are
// request/response exchanges on their own streams.
package pconn
