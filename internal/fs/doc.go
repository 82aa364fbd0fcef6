// Package fs abstracts the handful of filesystem calls the forest files need,
// so tests can inject failures.
//
//   - [LocalFS] forwards to the os package and is the [Default].
//   - [FaultyFS] wraps another FileSystem and fails writes, syncs, closes or
//     truncates on demand. Writes can fail cleanly (nothing written) or tear
//     (a prefix is written before the error), which is how append rollback is
//     exercised.
//
// There is no context.Context on these calls. Local file operations are not
// interruptible at the syscall level; remote targets live in blobstore.
package fs
