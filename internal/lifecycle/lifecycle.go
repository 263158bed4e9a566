package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/logging"
	"media-conversions/internal/manipulations"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
)

// Store is the record store with both delete flavours.
type Store interface {
	media.Store
	Delete(ctx context.Context, id int64) error
	ForceDelete(ctx context.Context, id int64) error
}

// Manipulator resolves and runs conversions.
type Manipulator interface {
	Conversions(m *media.Media) (*conversion.Collection, error)
	CreateDerivedFiles(ctx context.Context, m *media.Media, opts manipulator.Options) (manipulator.Results, error)
}

// Hooks keeps stored files in step with record changes.
type Hooks struct {
	store Store
	fs    *filesystem.Filesystem
	manip Manipulator
}

// New returns Hooks over the given collaborators.
func New(store Store, fs *filesystem.Filesystem, manip Manipulator) *Hooks {
	return &Hooks{store: store, fs: fs, manip: manip}
}

// Update applies fn to the stored record and then runs Updated. When the
// files cannot follow a rename the old file name is restored.
func (h *Hooks) Update(ctx context.Context, id int64, fn func(m *media.Media) error) (*media.Media, manipulator.Results, error) {
	old, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	updated, err := h.store.Update(ctx, id, fn)
	if err != nil {
		return nil, nil, err
	}

	results, err := h.Updated(ctx, old, updated)
	if err != nil && old.FileName != updated.FileName && errors.Is(err, errRename) {
		reverted, revertErr := h.store.Update(ctx, id, func(m *media.Media) error {
			m.FileName = old.FileName
			return nil
		})
		if revertErr != nil {
			return updated, results, errors.Join(err, fmt.Errorf("restore file name: %w", revertErr))
		}
		return reverted, results, err
	}
	return updated, results, err
}

var errRename = errors.New("rename stored files")

// Updated reacts to a saved change from old to updated. A new file name
// moves the original and every generated conversion file. Changed
// manipulations regenerate the derived files.
func (h *Hooks) Updated(ctx context.Context, old, updated *media.Media) (manipulator.Results, error) {
	if old.FileName != updated.FileName {
		if err := h.syncFileNames(ctx, old, updated); err != nil {
			return nil, fmt.Errorf("%w of media %d: %w", errRename, updated.ID, err)
		}
	}

	if old.ModelID == 0 {
		return nil, nil
	}
	if manipulationsEqual(old.Manipulations, updated.Manipulations) {
		return nil, nil
	}

	logging.Info("Manipulations of media %d changed, regenerating derived files", updated.ID)
	return h.manip.CreateDerivedFiles(ctx, updated, manipulator.Options{})
}

func (h *Hooks) syncFileNames(ctx context.Context, old, updated *media.Media) error {
	logging.Info("Renaming files of media %d: %s -> %s", updated.ID, old.FileName, updated.FileName)

	if err := h.fs.Move(ctx, updated, filesystem.KindOriginal, old.FileName, updated.FileName); err != nil {
		return err
	}

	convs, err := h.manip.Conversions(updated)
	if err != nil {
		return err
	}
	for _, c := range convs.All() {
		from, to := c.ConversionFileName(old.FileName), c.ConversionFileName(updated.FileName)
		exists, err := h.fs.Exists(ctx, updated, filesystem.KindConversion, from)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := h.fs.Move(ctx, updated, filesystem.KindConversion, from, to); err != nil {
			return err
		}
		logging.Debug("Renamed conversion %s of media %d to %s", c.Name(), updated.ID, to)
	}
	return nil
}

func manipulationsEqual(a, b map[string]manipulations.Group) bool {
	return maps.EqualFunc(a, b, func(x, y manipulations.Group) bool {
		return maps.Equal(x, y)
	})
}

// Delete loads the record and runs Deleted.
func (h *Hooks) Delete(ctx context.Context, id int64, force bool) error {
	m, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}
	return h.Deleted(ctx, m, force)
}

// Deleted removes m. A soft delete only marks the record and keeps every
// file. A force delete removes the files first and the record last, so a
// failed cleanup can be retried.
func (h *Hooks) Deleted(ctx context.Context, m *media.Media, force bool) error {
	if !force {
		if err := h.store.Delete(ctx, m.ID); err != nil {
			return err
		}
		logging.Info("Media %d moved to trash", m.ID)
		return nil
	}

	if err := h.fs.RemoveAllFiles(ctx, m); err != nil {
		return fmt.Errorf("remove files of media %d: %w", m.ID, err)
	}
	if err := h.store.ForceDelete(ctx, m.ID); err != nil {
		return err
	}
	logging.Info("Media %d deleted permanently", m.ID)
	return nil
}
