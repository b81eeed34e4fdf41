// Package protocol defines the Plaza wire protocol: the JSON envelope
// exchanged on every agent connection and the closed set of typed payloads it
// can carry.
//
// An Envelope is decoded in two steps. The transport unmarshals the frame
// into an Envelope; Decode then interprets the type tag and produces the
// matching payload struct. Handlers type-switch on the result, so an
// unhandled variant is a compile-visible gap rather than a silent
// default-case fallthrough.
//
// The package is shared by the coordination hub and the agent client and has
// no dependencies beyond JSON and UUID generation.
package protocol
