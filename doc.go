// Package auth is the access core of the faculty information system:
// sessions, login throttling, CSRF tokens, role based authorization over
// staff profiles and the account to profile linkage.
//
// Sessions:
//   - SessionStore persists per-client state. Memory, SQL and Redis
//     backends live in the repository package; all of them apply updates
//     atomically per session id.
//   - SessionManager enforces the idle timeout. Touch refreshes activity
//     and destroys sessions idle for the timeout or longer.
//
// Login:
//   - Auther checks the LoginThrottle before it looks at credentials, so a
//     blocked client learns nothing about the account. Unknown usernames,
//     inactive accounts and wrong passwords share ErrAuthenticationFailed.
//   - A successful login replaces the pre-auth session with a new id.
//
// Authorization:
//   - Resolve is the single access rule. AuthorizationResolver looks up the
//     profile an identity owns and applies it; lookup failures surface as
//     errors and are never turned into a decision.
//
// Linkage:
//   - IdentityLinkage is the only writer of the account to profile link.
//     Account commands call its Tx variants so the link changes in the same
//     transaction as the account.
package auth
