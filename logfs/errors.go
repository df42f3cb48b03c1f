package logfs

import (
	"errors"
	"fmt"
	"syscall"
)

// Sentinel errors for package logfs.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// Allocation errors
	ErrOutOfMemory = errors.New("out of memory")

	// Inode errors
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNotDirectory    = errors.New("not a directory")

	// Namespace errors
	ErrNotFound    = errors.New("no such file or directory")
	ErrExists      = errors.New("file exists")
	ErrInvalidName = errors.New("invalid file name")
	ErrNameTooLong = errors.New("file name too long")
	ErrReadOnly    = errors.New("read-only file system")

	// Mount and registration errors
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrBusy              = errors.New("device or resource busy")
	ErrUnknownFilesystem = errors.New("unknown filesystem type")
	ErrNotRegistered     = errors.New("filesystem type not registered")
	ErrNoDevice          = errors.New("block device required")
	ErrNotMounted        = errors.New("not mounted")
	ErrBadMagic          = errors.New("bad superblock magic")
)

// OpError records a failed core operation with the identifiers needed for
// a diagnostic.
type OpError struct {
	Op     string // "create_inode", "lookup", "mkdir", ...
	Device string
	Ino    uint64 // inode the operation acted on, 0 if none
	Name   string // entry name, empty if none
	Err    error
}

func (e *OpError) Error() string {
	msg := "logfs: " + e.Op
	if e.Device != "" {
		msg += " dev=" + e.Device
	}
	if e.Ino != 0 {
		msg += fmt.Sprintf(" ino=%d", e.Ino)
	}
	if e.Name != "" {
		msg += fmt.Sprintf(" name=%q", e.Name)
	}
	return msg + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// MountError is returned by a failed mount. The underlying cause is kept.
type MountError struct {
	Device string
	Err    error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("logfs: error mounting %q: %v", e.Device, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

var errnos = []struct {
	err     error
	errno   syscall.Errno
	outcome string
}{
	{ErrOutOfMemory, syscall.ENOMEM, "out_of_memory"},
	{ErrUnsupportedType, syscall.EOPNOTSUPP, "unsupported_type"},
	{ErrNotDirectory, syscall.ENOTDIR, "not_directory"},
	{ErrNotFound, syscall.ENOENT, "not_found"},
	{ErrExists, syscall.EEXIST, "exists"},
	{ErrInvalidName, syscall.EINVAL, "invalid_name"},
	{ErrNameTooLong, syscall.ENAMETOOLONG, "name_too_long"},
	{ErrReadOnly, syscall.EROFS, "read_only"},
	{ErrInvalidArgument, syscall.EINVAL, "invalid_argument"},
	{ErrBusy, syscall.EBUSY, "busy"},
	{ErrUnknownFilesystem, syscall.ENODEV, "unknown_filesystem"},
	{ErrNotRegistered, syscall.EINVAL, "not_registered"},
	{ErrNoDevice, syscall.ENOTBLK, "no_device"},
	{ErrNotMounted, syscall.EINVAL, "not_mounted"},
	{ErrBadMagic, syscall.EINVAL, "bad_magic"},
}

// Errno maps err to the errno a kernel filesystem would return for it.
// Unknown errors map to EIO; nil maps to 0.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.errno
		}
	}
	return syscall.EIO
}

// outcome is the short code the journal and metrics use for err.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, e := range errnos {
		if errors.Is(err, e.err) {
			return e.outcome
		}
	}
	return "error"
}
