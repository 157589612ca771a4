package runtime

import "fmt"

// ArtifactID names a deployed runtime artifact, e.g. "counter:0.1.0".
type ArtifactID string

// SUPERVISORInstanceID is the reserved instance_id granted access to
// ExecutionContext.SupervisorExtensions.
const SUPERVISORInstanceID uint32 = 0

// InstanceStatus is the closed lifecycle enum of a service instance,
// shaped after choices.Status: a small uint32 enum with a String and
// a Valid predicate rather than a free-form string.
type InstanceStatus uint32

const (
	StatusActive InstanceStatus = iota
	StatusFrozen
	StatusStopped
	StatusMigrating
)

func (s InstanceStatus) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusFrozen:
		return "Frozen"
	case StatusStopped:
		return "Stopped"
	case StatusMigrating:
		return "Migrating"
	default:
		return "Invalid"
	}
}

func (s InstanceStatus) Valid() bool {
	switch s {
	case StatusActive, StatusFrozen, StatusStopped, StatusMigrating:
		return true
	default:
		return false
	}
}

// MigrationState carries the extra fields the spec attaches to the
// Migrating variant: the target artifact, the data version migration
// scripts are bridging to, and the majority-confirmed output hash
// once commit_migration has run.
type MigrationState struct {
	TargetArtifact ArtifactID
	EndVersion     string
	CompletedHash  *[32]byte
}

// InstanceSpec is the immutable identity of a deployed instance.
type InstanceSpec struct {
	ArtifactID ArtifactID
	InstanceID uint32
	Name       string
}

// InstanceDescriptor is the read-only view returned by GetService and
// embedded in every ExecutionContext.
type InstanceDescriptor struct {
	Spec        InstanceSpec
	Status      InstanceStatus
	Migration   *MigrationState // non-nil iff Status == StatusMigrating
	DataVersion string
}

func (d InstanceDescriptor) String() string {
	return fmt.Sprintf("%s#%d(%s)", d.Spec.Name, d.Spec.InstanceID, d.Status)
}
