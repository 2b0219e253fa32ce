// Package pwire contains the wire encoding shared by the prism
// session and the compositor: command records, the region codec,
// and the frame stats record.
//
// Encoders are append-style and allocation-conscious, since a
// session encodes every property change an application makes.
package pwire
