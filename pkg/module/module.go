package module

import "context"

// InitFunc initializes the scanner-wide Environment. Returning ok=false is
// a hard abort of the entire run.
type InitFunc func(env Environment, opts map[string]interface{}) (delta Environment, ok bool)

// InitDomainFunc prepares a per-domain Environment. Returning ok=false
// silently skips the domain: no row is emitted for it.
type InitDomainFunc func(domain string, env Environment, opts map[string]interface{}) (delta Environment, ok bool)

// ScanFunc performs the actual probe against domain. Used by the Local
// Executor; remote-only scanners may leave this nil.
type ScanFunc func(ctx context.Context, domain string, env Environment, opts map[string]interface{}) (payload interface{}, err error)

// PostScanFunc runs after a scan attempt (cache hit or miss) and before the
// payload is cached and converted to rows. Its return value is ignored; it
// exists for side effects such as collecting advice or metrics.
type PostScanFunc func(domain string, payload interface{}, env Environment, opts map[string]interface{})

// FinalizeFunc runs once after every domain task for a scanner completes.
type FinalizeFunc func(env Environment, opts map[string]interface{})

// ToRowsFunc converts a scan payload into zero or more output rows. A
// scanner may fan a single payload out into several rows.
type ToRowsFunc func(payload interface{}) [][]string

// Registration is a scanner module's declared capability set. Hooks left
// nil are no-ops; this is how the framework avoids probing for optional
// methods at call time, per the module's own declaration at load time.
type Registration struct {
	// Name identifies the scanner on the command line and is used to
	// derive the remote function name (task_<Name>) and the cache/table
	// paths.
	Name string

	// Headers are the scanner-declared output columns, in order.
	Headers []string

	// ToRows is required; every scanner must know how to turn its own
	// payload into rows.
	ToRows ToRowsFunc

	Init       InitFunc
	InitDomain InitDomainFunc
	Scan       ScanFunc
	PostScan   PostScanFunc
	Finalize   FinalizeFunc

	// ScanHeadless routes Local Executor invocations through the
	// headless-browser bridge instead of calling Scan directly.
	ScanHeadless bool

	// UseLambda overrides the run-wide default executor choice for this
	// scanner specifically.
	UseLambda *bool

	// Workers overrides the run-wide default worker count for this
	// scanner. Zero means "use the default".
	Workers int
}
