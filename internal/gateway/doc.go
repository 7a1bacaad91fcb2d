// Package gateway emulates the peer's REST surface over a connection session.
//
// Ownership boundary:
// - Gate: handshake decision and socket upgrade
// - Hub: one Session and Adapter per accepted connection
// - Connector: canonical /v3 routes, request encoding, response normalization
// - Adapter: outbound activity policy and the inbound /api/messages handler
package gateway
