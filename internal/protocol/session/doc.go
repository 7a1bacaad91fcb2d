// Package session owns one duplex connection between the gateway and a peer.
//
// Ownership boundary:
// - request/response model and its frame encoding
// - correlation of outbound requests with response frames (PendingTable)
// - the single read loop that dispatches peer-initiated requests to a Handler
// - retry/backoff primitives used by dialing peers
//
// Both ends allocate correlation ids from their own counter; the frame
// direction flag keeps the two id spaces apart on one stream.
package session
