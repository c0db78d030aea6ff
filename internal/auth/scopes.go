package auth

// Scopes understood by the progression API. Tokens are minted by the
// identity service; the list here only names what this service checks.
const (
	ScopeRead  = "progression:read"
	ScopeWrite = "progression:write"
	ScopeAdmin = "progression:admin"
)
