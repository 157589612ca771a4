package runtime

import "github.com/meridian/replica/utils/wrappers"

func packString(pk *wrappers.Packer, s string) {
	pk.PackInt(uint32(len(s)))
	pk.PackBytes([]byte(s))
}

func unpackString(u *wrappers.Unpacker) string {
	n := u.UnpackInt()
	return string(u.UnpackBytes(int(n)))
}

func encodeInstanceRecord(r InstanceRecord) []byte {
	pk := wrappers.NewPacker(64 + len(r.Spec.Name) + len(r.DataVersion))
	packString(pk, string(r.Spec.ArtifactID))
	pk.PackInt(r.Spec.InstanceID)
	packString(pk, r.Spec.Name)
	pk.PackByte(byte(r.Status))
	packString(pk, r.DataVersion)

	if r.Migration == nil {
		pk.PackByte(0)
	} else {
		pk.PackByte(1)
		packString(pk, string(r.Migration.TargetArtifact))
		packString(pk, r.Migration.EndVersion)
		if r.Migration.CompletedHash == nil {
			pk.PackByte(0)
		} else {
			pk.PackByte(1)
			pk.PackBytes(r.Migration.CompletedHash[:])
		}
	}
	return pk.Bytes
}

func decodeInstanceRecord(b []byte) (InstanceRecord, error) {
	u := wrappers.NewUnpacker(b)
	artifact := unpackString(u)
	instanceID := u.UnpackInt()
	name := unpackString(u)
	status := u.UnpackByte()
	dataVersion := unpackString(u)

	rec := InstanceRecord{
		Spec: InstanceSpec{
			ArtifactID: ArtifactID(artifact),
			InstanceID: instanceID,
			Name:       name,
		},
		Status:      InstanceStatus(status),
		DataVersion: dataVersion,
	}
	hasMigration := u.UnpackByte()
	if hasMigration == 1 {
		target := unpackString(u)
		endVersion := unpackString(u)
		m := &MigrationState{TargetArtifact: ArtifactID(target), EndVersion: endVersion}
		hasHash := u.UnpackByte()
		if hasHash == 1 {
			var h [32]byte
			copy(h[:], u.UnpackBytes(32))
			m.CompletedHash = &h
		}
		rec.Migration = m
	}
	return rec, u.Err
}
