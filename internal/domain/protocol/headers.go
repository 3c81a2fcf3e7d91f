package protocol

// Session header contract. Every stateful call carries a
// connection-scoped identifier that stays constant across a workflow,
// a per-call unique request identifier, and a literal flag declaring
// the session stateful. The remote system ties lock ownership to the
// connection identifier, so lock, update, and unlock calls must carry
// all three; other calls may.
const (
	// HeaderConnectionID is the connection-scoped session identifier.
	HeaderConnectionID = "X-Adt-Connection-Id"

	// HeaderRequestID is the per-call correlation identifier.
	HeaderRequestID = "X-Adt-Request-Id"

	// HeaderSessionType declares the session mode of the call.
	HeaderSessionType = "X-Adt-Session-Type"

	// HeaderCSRFToken carries the anti-forgery token on mutating
	// calls; sending the value CSRFTokenFetch on a read asks the
	// server to issue one.
	HeaderCSRFToken = "X-Csrf-Token"
)

// HeaderSessionType values.
const (
	// SessionStateful pins the call to the server-side session bound
	// to the connection identifier.
	SessionStateful = "stateful"

	// SessionStateless marks a call that needs no server-side session.
	SessionStateless = "stateless"
)

// CSRFTokenFetch is the sentinel token value that requests a fresh
// token from the server.
const CSRFTokenFetch = "fetch"
