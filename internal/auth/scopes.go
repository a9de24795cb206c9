package auth

const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopePipelineRead  = "pipeline:read"
	ScopePipelineWrite = "pipeline:write"
)

// AllScopes defines the full set of scopes used by API clients.
var AllScopes = []string{
	ScopeOpenID,
	ScopeProfile,
	ScopeEmail,
	ScopePipelineRead,
	ScopePipelineWrite,
}
