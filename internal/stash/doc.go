// Package stash implements the element stash: an append-only log of fixed
// 8-byte records.
//
// Record i lives at byte offset i*8. There is no header, length prefix or
// checksum. The only mutation is [Stash.Append], which either writes every
// record of the batch or truncates the file back to its previous length.
// Bytes that were once appended never change, so any index handed out stays
// readable for the lifetime of the file while a writer keeps appending.
//
// Reads go through a separate handle from the append handle, either pread on
// the file or a read-only memory mapping that is refreshed when the file has
// grown past the mapped length.
package stash
