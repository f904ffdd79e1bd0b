// Package parts stores a sequence of numbered part objects in a blob bucket.
//
// A part set is what one packing job leaves behind: either a single archive,
// a raw byte stream cut into fixed-size slices, or a series of independently
// usable archives. The package is storage-agnostic via gocloud.dev/blob; in
// production it runs on a fileblob bucket rooted at the user's output
// directory.
//
// # Writing
//
// Use [Create] to start a set. Call [Set.Next] to open successive parts, write
// to each, then Close it. Close commits the object and re-measures it with
// [blob.Bucket.Attributes]; the measured size is what the index records. Call
// [Set.Complete] to write the index, or [Set.Abort] to delete everything the
// set committed.
//
// Options:
//   - [WithLayout]: single, raw or entry (default single)
//   - [WithPartSize]: size ceiling; required for raw
//   - [WithMetadata]: caller-defined metadata stored in the index
//   - [WithChecksum]: BLAKE3 checksum per part (default on)
//
// # Reading
//
// [Open] returns a [Reader] that streams all parts in sequence order. For a
// raw set that is the original byte stream.
//
// # Storage Layout
//
//	{base}.zip                 (single)
//	{base}.zip.001, .002, ...  (raw)
//	{base}.part001.zip, ...    (entry)
//	{base}.parts.json          (index, written by Complete)
//
// # Index Format
//
//	{
//	  "base": "packed_files_1760556000_1a2b3c4d",
//	  "layout": "raw",
//	  "total_size": 5243122,
//	  "part_size": 4194304,
//	  "parts": [
//	    {"object": "packed_files_1760556000_1a2b3c4d.zip.001", "sequence": 1, "offset": 0, "size": 4194304, "checksum": "..."},
//	    ...
//	  ],
//	  "metadata": {"job_id": "...", "user_id": "..."},
//	  "completed_at": "2026-10-15T10:30:00Z"
//	}
package parts
