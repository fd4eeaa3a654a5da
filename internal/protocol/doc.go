// Package protocol groups the parkd wire contract.
//
// Ownership boundary:
// - frame: fixed header and payload framing
// - tlv: typed payload fields
// - schema: per-kind required fields and limits
// - session: coordinator request, reply and snapshot messages
package protocol
