// Package auth provides a cookie based session lifecycle: HS256 session
// tokens, a login resolver backed by local accounts or a directory, and a
// role assignment ledger persisted via Bun.
//
// Token lifecycle:
//   - SessionPolicy issues tokens with an access expiry (exp) and, when
//     lifetime tracking is on, an absolute expiry (max_exp) fixed at first
//     login. Renewals never move max_exp and never set exp past it.
//   - TryRefresh returns a tagged RefreshResult: Renewed, NotEligible while
//     the refresh interval has not elapsed, or Rejected with a reason.
//   - The renewal middleware reissues tokens close to expiry on ordinary
//     requests so active users are not logged out mid session.
//
// Identity resolution:
//   - IdentityResolver tries the local account table first for configured
//     local users, then the DirectoryService. A first directory login creates
//     the account and grants the default role; both paths emit ActivityEvents.
//   - Failures look the same to callers: ErrInvalidCredentials.
//
// Roles:
//   - RoleLedger grants are idempotent and every first grant leaves an audit
//     row. Roles are read from the ledger on each login and refresh.
package auth
