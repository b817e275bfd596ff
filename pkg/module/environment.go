package module

import "github.com/goccy/go-json"

// FastCacheKey is the reserved Environment key for a scanner's large
// shared lookup table. Values stored under this key are aliased across
// clones, never deep-copied, and are stripped before an Environment is
// transmitted to the Remote Executor.
const FastCacheKey = "_fastCache"

// Environment is the keyed bag of values threaded through a scanner's
// lifecycle: initialize, per-domain prepare, scan, post-scan, finalize.
type Environment map[string]interface{}

// Clone returns a structural copy of e suitable for handing to a
// concurrent domain task: every entry is round-tripped through JSON so
// that mutations made by one task's InitDomain hook can't leak into
// another's, except for FastCacheKey, which is aliased by reference since
// it may hold a large table that is never meant to be copied.
func (e Environment) Clone() Environment {
	clone := make(Environment, len(e))

	fastCache, hasFastCache := e[FastCacheKey]

	plain := make(Environment, len(e))
	for k, v := range e {
		if k == FastCacheKey {
			continue
		}
		plain[k] = v
	}

	data, err := json.Marshal(plain)
	if err != nil {
		// Fall back to a shallow copy rather than losing the run; this
		// only happens if a scanner stuffs a non-JSON-serializable value
		// into the environment outside of the fast cache slot.
		for k, v := range plain {
			clone[k] = v
		}
	} else if err := json.Unmarshal(data, &clone); err != nil {
		for k, v := range plain {
			clone[k] = v
		}
	}

	if hasFastCache {
		clone[FastCacheKey] = fastCache
	}

	return clone
}

// WithoutFastCache returns a copy of e with the fast-cache entry removed,
// used right before building the envelope sent to the Remote Executor.
func (e Environment) WithoutFastCache() Environment {
	if _, ok := e[FastCacheKey]; !ok {
		return e
	}

	out := make(Environment, len(e)-1)
	for k, v := range e {
		if k == FastCacheKey {
			continue
		}
		out[k] = v
	}

	return out
}

// Merge applies delta on top of e in place.
func (e Environment) Merge(delta Environment) {
	for k, v := range delta {
		e[k] = v
	}
}
