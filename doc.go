// Package cloak lets privileged users act as another user ("cloaking")
// and issues short lived signed links that log their bearer in as a
// chosen user.
//
// Login links:
//   - Service.IssueLoginLink signs the target's identifier together with
//     the current time. Service.RedeemLoginLink accepts the link for
//     MaxLoginLinkAge and establishes a regular session through the
//     configured Authenticator. Every rejection looks the same to the
//     bearer. Links are reusable inside their window unless a
//     ReplayGuard is configured.
//
// Cloaking:
//   - The cloak lives in the session as a CloakState. IdentityOverlay
//     recomputes the effective principal on each request and re-checks
//     the AuthorizationPolicy, so revoking the actor's rights ends the
//     cloak on their next request without touching the session.
//   - CanCloakAs consults the actor's Capability first, then its admin
//     Flag, and denies otherwise.
//
// HTTP:
//   - Mount wires the session authentication and overlay middleware plus
//     the login, cloak and uncloak routes onto a go-router Router. The
//     fiber app behind it runs Sessions.Middleware so handlers find the
//     request session in their locals.
//
// Activity sinks:
//   - ActivitySink receives cloak and login link events. Sinks run best
//     effort; errors are logged.
package cloak
