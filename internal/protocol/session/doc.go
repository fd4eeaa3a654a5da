// Package session owns the parkd session wire messages.
//
// Ownership boundary:
// - request/reply TLV payloads on top of frame and schema
// - lot snapshot and discovery datagrams (CBOR)
// - session timeouts and retry backoff
package session
