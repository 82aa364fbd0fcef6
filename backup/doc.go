// Package backup copies forest directories to and from a blobstore.
//
// An archive named N consists of one compressed blob per forest file,
// N/elements.stash.zst and (for string forests) N/keys.stash.zst, plus
// N/MANIFEST. The manifest is written last; an archive without one is
// incomplete and Import refuses it.
//
// Export may run while a writer keeps pushing. The element stash length is
// captured first and the key file length second, so every key a copied
// record refers to is part of the copy.
//
//	store := blobstore.NewLocalStore("/backups")
//	_ = backup.Export(ctx, "./forest", store, "nightly")
//	_ = backup.Import(ctx, store, "nightly", "./restored")
package backup
