// Package mmap maps stash files read-only into memory.
//
// A [Mapping] is a snapshot of the file length at open time. The element
// stash only ever grows, so a reader that needs a record past the mapped
// length calls [Mapping.Remap] to obtain a fresh, longer view; bytes already
// mapped never change.
//
// Unix uses mmap(2) and madvise(2). Windows uses CreateFileMapping and
// MapViewOfFile, and Advise is a no-op there.
//
// Mappings are safe for concurrent reads. Close is idempotent, but callers
// must not touch Bytes after Close returns.
package mmap
