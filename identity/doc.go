// Package identity translates login, registration and logout intents into requests
// against a PocketBase-compatible identity service and normalizes its answers into a
// small error taxonomy.
//
// The client is stateless and performs no local validation of email format or
// password strength; input hygiene is a presentation concern. Its only jobs are
// protocol translation and error normalization.
//
// # Error taxonomy
//
//   - [ErrInvalidCredentials]: the service rejected the email/password pair.
//   - [ErrAccountNotFound]: the service has no such account.
//   - [ErrEmailTaken]: registration hit the email uniqueness constraint.
//   - [ErrInvalidRegistration]: registration failed field validation.
//   - [ErrServiceUnavailable]: transport failure, timeout, 5xx, or a malformed reply.
//
// Every failure is a [*ServiceError] matching exactly one of these via errors.Is.
package identity
