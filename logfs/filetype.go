package logfs

import "os"

// FileType is the variant of a filesystem object.
type FileType uint8

const (
	TypeUnknown FileType = iota
	TypeDirectory
	TypeRegular
	TypeSymlink
)

func (t FileType) String() string {
	switch t {
	case TypeDirectory:
		return "directory"
	case TypeRegular:
		return "regular"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// TypeOf returns the variant encoded in the type bits of mode.
func TypeOf(mode os.FileMode) FileType {
	switch mode & os.ModeType {
	case 0:
		return TypeRegular
	case os.ModeDir:
		return TypeDirectory
	case os.ModeSymlink:
		return TypeSymlink
	default:
		return TypeUnknown
	}
}

// Capabilities lists what an inode of a given variant can do. The table is
// consulted once, when the inode is created.
type Capabilities struct {
	Supported bool // the factory can build this variant
	Lookup    bool // name resolution through InodeOperations
	Iterate   bool // enumeration through FileOperations
	Create    bool // child creation through InodeOperations
}

var capabilityTable = map[FileType]Capabilities{
	TypeDirectory: {Supported: true, Lookup: true, Iterate: true, Create: true},
	// Regular files and symlinks need data and target storage, which this
	// filesystem does not keep.
	TypeRegular: {},
	TypeSymlink: {},
}

// CapabilitiesOf returns the capability row for t. Unknown variants get
// the zero row.
func CapabilitiesOf(t FileType) Capabilities {
	return capabilityTable[t]
}
