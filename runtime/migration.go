package runtime

import (
	"encoding/binary"
	"fmt"

	"github.com/meridian/replica/storage"
)

// MigrationScript bridges one named sub-address of a service's data
// from its current (read-only) contents to a writable private
// namespace, the streaming old-to-new shape named in SPEC_FULL's
// original_source/ supplement rather than a batch transform.
type MigrationScript struct {
	Address string
	Run     func(oldData, newData *storage.View) error
}

func instanceFamilyKey(instanceID uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, instanceID)
	return b
}

func migratingFamilyKey(instanceID uint32) []byte {
	return append([]byte("migrating:"), instanceFamilyKey(instanceID)...)
}

// InitiateMigration runs scripts against instanceID's current data,
// writing their output into a private namespace, and marks the
// instance Migrating. Real deployments would run scripts
// asynchronously over many blocks; this model runs them inline and
// records the result, which is observationally equivalent for a
// single-node test harness.
func (d *Dispatcher) InitiateMigration(f *storage.Fork, instanceID uint32, target ArtifactID, endVersion string, scripts []MigrationScript) error {
	if err := d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		if r.Status != StatusStopped {
			return fmt.Errorf("%w: instance %d must be Stopped before migrating", ErrIncorrectInstanceId, instanceID)
		}
		r.Status = StatusMigrating
		r.Migration = &MigrationState{TargetArtifact: target, EndVersion: endVersion}
		return nil
	}); err != nil {
		return err
	}

	oldFamily := instanceFamilyKey(instanceID)
	newFamily := migratingFamilyKey(instanceID)
	for _, script := range scripts {
		base := storage.NewIndexAddress(script.Address)
		oldView := f.ViewShared(base.Qualified(oldFamily))
		newView, err := f.ViewMut(base.Qualified(newFamily))
		if err != nil {
			return fmt.Errorf("migration script %s: %w", script.Address, err)
		}
		err = script.Run(oldView, newView)
		f.ReleaseMut(base.Qualified(newFamily))
		if err != nil {
			return fmt.Errorf("migration script %s: %w", script.Address, err)
		}
	}
	d.migrations[instanceID] = scripts
	return nil
}

// CommitMigration records the majority-confirmed hash of the
// migration's output, guarding against divergent migration results
// across validators.
func (d *Dispatcher) CommitMigration(f *storage.Fork, instanceID uint32, hash [32]byte) error {
	return d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		if r.Status != StatusMigrating || r.Migration == nil {
			return fmt.Errorf("%w: instance %d", ErrNotMigrating, instanceID)
		}
		h := hash
		r.Migration.CompletedHash = &h
		return nil
	})
}

// FlushMigration atomically swaps the private migration namespace into
// the live namespace, advances data_version, and returns the instance
// to Stopped.
func (d *Dispatcher) FlushMigration(f *storage.Fork, instanceID uint32) error {
	rec, err := d.recordOf(f, instanceID)
	if err != nil {
		return err
	}
	if rec.Status != StatusMigrating || rec.Migration == nil {
		return fmt.Errorf("%w: instance %d", ErrNotMigrating, instanceID)
	}
	if rec.Migration.CompletedHash == nil {
		return fmt.Errorf("%w: instance %d", ErrNoMigrationHash, instanceID)
	}

	scripts := d.migrations[instanceID]
	oldFamily := instanceFamilyKey(instanceID)
	newFamily := migratingFamilyKey(instanceID)
	for _, script := range scripts {
		base := storage.NewIndexAddress(script.Address)
		src := f.ViewShared(base.Qualified(newFamily))
		dst, err := f.ViewMut(base.Qualified(oldFamily))
		if err != nil {
			return err
		}
		dst.Clear()
		it := src.IterFrom(nil)
		for it.Next() {
			dst.Put(it.Key(), it.Value())
		}
		f.ReleaseMut(base.Qualified(oldFamily))
	}
	delete(d.migrations, instanceID)

	endVersion := rec.Migration.EndVersion
	return d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		r.Status = StatusStopped
		r.DataVersion = endVersion
		r.Migration = nil
		return nil
	})
}

// RollbackMigration discards migrated data and returns the instance
// to Stopped without changing data_version.
func (d *Dispatcher) RollbackMigration(f *storage.Fork, instanceID uint32) error {
	scripts := d.migrations[instanceID]
	newFamily := migratingFamilyKey(instanceID)
	for _, script := range scripts {
		base := storage.NewIndexAddress(script.Address)
		v, err := f.ViewMut(base.Qualified(newFamily))
		if err != nil {
			return err
		}
		v.Clear()
		f.ReleaseMut(base.Qualified(newFamily))
	}
	delete(d.migrations, instanceID)

	return d.setStatus(f, instanceID, func(r *InstanceRecord) error {
		r.Status = StatusStopped
		r.Migration = nil
		return nil
	})
}

func (d *Dispatcher) recordOf(f *storage.Fork, instanceID uint32) (InstanceRecord, error) {
	reg, err := d.registry(f)
	if err != nil {
		return InstanceRecord{}, err
	}
	rec, ok := reg.Get(instanceID)
	if !ok {
		return InstanceRecord{}, fmt.Errorf("%w: instance %d", ErrIncorrectInstanceId, instanceID)
	}
	return rec, nil
}
