package wire

import "fmt"

// Version is a wire protocol version negotiated between two nodes.
//
// Its id is laid out as MMmmpp99 (major, minor, patch), so ids order like versions.
type Version struct {
	id int32
}

var (
	V_2_19_0 = NewVersion(2, 19, 0)
	V_3_0_0  = NewVersion(3, 0, 0)
	V_3_1_0  = NewVersion(3, 1, 0)

	// Current is the version this build speaks.
	Current = V_3_1_0

	// Minimum is the oldest version this build can talk with.
	Minimum = V_2_19_0
)

func NewVersion(major, minor, patch int) Version {
	return Version{id: int32(major*1_000_000 + minor*10_000 + patch*100 + 99)}
}

func VersionFromId(id int32) Version {
	return Version{id: id}
}

func (v Version) Id() int32 {
	return v.id
}

func (v Version) Major() int {
	return int(v.id / 1_000_000)
}

func (v Version) Minor() int {
	return int(v.id/10_000) % 100
}

func (v Version) Patch() int {
	return int(v.id/100) % 100
}

func (v Version) OnOrAfter(other Version) bool {
	return other.id <= v.id
}

func (v Version) Before(other Version) bool {
	return v.id < other.id
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
}

// Min returns older one.
func Min(a, b Version) Version {
	if a.Before(b) {
		return a
	}
	return b
}
