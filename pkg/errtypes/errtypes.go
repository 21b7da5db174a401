// Package errtypes contains the error taxonomy shared by every component of
// the file service. It would have been nice to call this package errors, but
// errors clashes with github.com/pkg/errors and error is a reserved word.
package errtypes

// NotFound is returned when a referenced uid, version or tenant does not exist.
type NotFound string

func (e NotFound) Error() string { return "not found: " + string(e) }

// IsNotFound implements the IsNotFound marker interface.
func (e NotFound) IsNotFound() {}

// Conflict is returned on a unique-name violation or a name/parent race.
type Conflict string

func (e Conflict) Error() string { return "conflict: " + string(e) }

// IsConflict implements the IsConflict marker interface.
func (e Conflict) IsConflict() {}

// Cycle is returned when a move would create a directory cycle.
type Cycle string

func (e Cycle) Error() string { return "cycle: " + string(e) }

// IsCycle implements the IsCycle marker interface.
func (e Cycle) IsCycle() {}

// Denied is returned when an ACL check fails.
type Denied string

func (e Denied) Error() string { return "permission denied: " + string(e) }

// IsDenied implements the IsDenied marker interface.
func (e Denied) IsDenied() {}

// NoVersion is returned when a file has no current_version.
type NoVersion string

func (e NoVersion) Error() string { return "no version: " + string(e) }

// IsNoVersion implements the IsNoVersion marker interface.
func (e NoVersion) IsNoVersion() {}

// NoSuchVersion is returned when a specific version_ts does not exist.
type NoSuchVersion string

func (e NoSuchVersion) Error() string { return "no such version: " + string(e) }

// IsNoSuchVersion implements the IsNoSuchVersion marker interface.
func (e NoSuchVersion) IsNoSuchVersion() {}

// Oversized is returned when a payload cannot fit the cache even after full eviction.
type Oversized string

func (e Oversized) Error() string { return "oversized: " + string(e) }

// IsOversized implements the IsOversized marker interface.
func (e Oversized) IsOversized() {}

// IO is returned when a blob read or write fails.
type IO string

func (e IO) Error() string { return "io error: " + string(e) }

// IsIO implements the IsIO marker interface.
func (e IO) IsIO() {}

// ReadOnly is returned when the primary metadata store is unavailable and a
// mutation was rejected.
type ReadOnly string

func (e ReadOnly) Error() string { return "read-only mode: " + string(e) }

// IsReadOnly implements the IsReadOnly marker interface.
func (e ReadOnly) IsReadOnly() {}

// Busy is returned when a sync pass is already in flight.
type Busy string

func (e Busy) Error() string { return "busy: " + string(e) }

// IsBusy implements the IsBusy marker interface.
func (e Busy) IsBusy() {}

// Cancelled is returned when a client deadline elapsed.
type Cancelled string

func (e Cancelled) Error() string { return "cancelled: " + string(e) }

// IsCancelled implements the IsCancelled marker interface.
func (e Cancelled) IsCancelled() {}

// Internal is the catch-all for invariant violations.
type Internal string

func (e Internal) Error() string { return "internal error: " + string(e) }

// IsInternal implements the IsInternal marker interface.
func (e Internal) IsInternal() {}

// IsNotFound is implemented by errors representing a missing resource.
type IsNotFound interface{ IsNotFound() }

// IsConflict is implemented by errors representing a naming conflict.
type IsConflict interface{ IsConflict() }

// IsCycle is implemented by errors representing a would-be directory cycle.
type IsCycle interface{ IsCycle() }

// IsDenied is implemented by errors representing a failed ACL check.
type IsDenied interface{ IsDenied() }

// IsNoVersion is implemented by errors representing a file without a current version.
type IsNoVersion interface{ IsNoVersion() }

// IsNoSuchVersion is implemented by errors representing a missing specific version.
type IsNoSuchVersion interface{ IsNoSuchVersion() }

// IsOversized is implemented by errors representing a payload that cannot be cached.
type IsOversized interface{ IsOversized() }

// IsIO is implemented by errors representing a blob store failure.
type IsIO interface{ IsIO() }

// IsReadOnly is implemented by errors representing a rejected mutation in read-only mode.
type IsReadOnly interface{ IsReadOnly() }

// IsBusy is implemented by errors representing an already-in-flight operation.
type IsBusy interface{ IsBusy() }

// IsCancelled is implemented by errors representing an expired client deadline.
type IsCancelled interface{ IsCancelled() }

// IsInternal is implemented by errors representing an invariant violation.
type IsInternal interface{ IsInternal() }
