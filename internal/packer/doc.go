// Package packer bundles a user's stored files into stored-mode ZIP archives
// with bounded memory.
//
// A job snapshots the user's source directory, validates the request, takes
// a slot from the admission gate and writes its output into the user's
// output directory through a [parts.Set]:
//
//	e, err := packer.New(store, gate, packer.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	res, err := e.RunPackJob(ctx, userID, nil) // one archive
//
// With a part size, the job is split either into independent archives that
// each open on their own (entry mode, the default) or into fixed-size byte
// slices of a single archive that must be joined before extraction (raw
// mode). Split jobs also get a text manifest listing every part's link.
//
// Every file is copied through one fixed buffer, so memory use does not grow
// with file size. Files that cannot be read are skipped and reported in the
// result. Any write failure, timeout or cancellation removes everything the
// job wrote; the admission slot is always released.
//
// Failures are returned as *Error with a [Kind]; [Reason] gives the message
// to show the end user.
package packer
