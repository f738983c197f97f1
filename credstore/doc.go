// Package credstore provides durable, encrypted-at-rest persistence for exactly one
// stored credential (a bearer token plus its user record) on a single device.
//
// # Layout
//
// A credential is written under two keys of a [Backend] (by default "authToken" and
// "authModel"). Each value is a versioned binary envelope carrying a pair id, the
// save time and an XChaCha20-Poly1305 ciphertext. The pair id is bound into the
// AEAD additional data, so a token is never accepted next to a record written by a
// different Save, even after a crash between the two writes.
//
// # Architecture boundaries
//
// This package owns the storage medium. It does NOT interpret tokens, talk to the
// identity service, or decide what a failed load means for the session; those
// decisions belong to the session manager.
//
// # What this package must NOT do
//
//   - Import authsession or identity (no upward imports).
//   - Store plaintext tokens or user records in a Backend.
//   - Log credential material.
package credstore
