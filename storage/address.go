package storage

// IndexAddress uniquely identifies a typed container within a fork or
// snapshot: a name plus an optional family key, used to group related
// indexes (e.g. one address per service instance) under one name.
type IndexAddress struct {
	Name      string
	FamilyKey []byte
}

// NewIndexAddress returns the address with no family key.
func NewIndexAddress(name string) IndexAddress {
	return IndexAddress{Name: name}
}

// Qualified returns the address scoped by the given family key,
// leaving the receiver untouched.
func (a IndexAddress) Qualified(familyKey []byte) IndexAddress {
	fk := make([]byte, len(familyKey))
	copy(fk, familyKey)
	return IndexAddress{Name: a.Name, FamilyKey: fk}
}

// Bytes returns the backend key prefix for this address:
// name ‖ 0x00 ‖ family_key.
func (a IndexAddress) Bytes() []byte {
	out := make([]byte, 0, len(a.Name)+1+len(a.FamilyKey))
	out = append(out, a.Name...)
	out = append(out, 0x00)
	out = append(out, a.FamilyKey...)
	return out
}

// FullKey returns the backend key for a value stored at key within
// this address: the address prefix followed by the key bytes.
func (a IndexAddress) FullKey(key []byte) []byte {
	prefix := a.Bytes()
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	out = append(out, key...)
	return out
}

// String renders the address for logging/diagnostics.
func (a IndexAddress) String() string {
	if len(a.FamilyKey) == 0 {
		return a.Name
	}
	return a.Name + ":" + string(a.FamilyKey)
}
