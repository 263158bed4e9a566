// Package lifecycle keeps the stored files of a media item consistent with
// its record.
//
// Callers that change or delete records go through Hooks instead of the
// store directly:
//
//	updated, results, err := hooks.Update(ctx, id, func(m *media.Media) error {
//		m.FileName = "renamed.jpg"
//		return nil
//	})
//
// Renaming the file moves the original and its generated conversions.
// Changing the manipulations regenerates the derived files, and force
// deleting removes every file before the record.
package lifecycle
