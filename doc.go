// Package authsession manages a client-side authentication session: it restores
// a saved credential at startup, signs in or registers against a remote identity
// service, persists the resulting credential to device storage, and signs out.
//
// The [Manager] is the single owner of the session. Consumers read its state
// ([Manager.Status], [Manager.Session], [Manager.CurrentUser]) without locks and
// observe transitions through [Manager.Subscribe]. Mutations (restore, login,
// register, logout) are serialized; see [ConcurrencyPolicy].
//
// # Architecture boundaries
//
// authsession is the public surface. Credential persistence lives in credstore,
// the identity service protocol in identity. Audit dispatch and metric storage
// live under internal/ and are reachable only through this package.
//
// # What this package must NOT do
//
//   - Validate email format or password strength. The identity service decides.
//   - Retry failed identity calls.
//   - Log or audit tokens, passwords or full user records.
//   - Let a failed login, registration or restore leave a partial session.
package authsession
