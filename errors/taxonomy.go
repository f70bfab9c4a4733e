package errors

// Sentinel error kinds forming the module's error handling taxonomy:
// storage failures are transient and retried by the beat; validation
// failures are surfaced synchronously to the caller; protocol violations
// are refused without local retry; fatal errors abort
// startup. NotFound is declared per-package (e.g. buffer.NotFound) since
// it is always scoped to a specific lookup.
var (
	// Storage marks an I/O failure: disk full, permission denied, a
	// corrupted on-disk header. Callers log and let the beat retry.
	Storage = New("storage error")

	// Validation marks a message that failed clean_properties or a rule
	// file that failed schema validation. Rejected synchronously, never
	// enqueued.
	Validation = New("validation error")

	// ProtocolViolation marks a peer operation the router disallows, such
	// as receiving from a source outside the upstream allowlist.
	// orchestrator.AddReceiver returns it before any link is opened; peer
	// links that are already attached are not closed with it. The attempt
	// is not retried locally.
	ProtocolViolation = New("protocol violation")

	// Fatal marks an unrecoverable startup condition: the spool lock
	// could not be obtained, or the spool directory is missing and
	// cannot be created.
	Fatal = New("fatal error")
)
