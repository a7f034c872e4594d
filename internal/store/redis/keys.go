package redis

const (
	// KeySession is the fixed key holding the single serialized session.
	// One deployment serves one account, so there is exactly one.
	KeySession = "skymark:session"
	// KeyPrefixDID is the prefix for cached identifier -> DID resolutions.
	KeyPrefixDID = "skymark:did:"
)

// SessionKey returns the Redis key for the stored session
func SessionKey() string {
	return KeySession
}

// DIDKey returns the Redis key for a cached identifier resolution
func DIDKey(identifier string) string {
	return KeyPrefixDID + identifier
}
