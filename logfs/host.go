package logfs

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// FilesystemType describes a filesystem to a Host: its name, the magic its
// superblocks carry and its mount and teardown entry points.
type FilesystemType struct {
	Name           string
	Magic          uint32
	RequiresDevice bool

	// Mount builds an instance and returns its root dentry.
	Mount func(ctx context.Context, t *FilesystemType, flags MountFlags, device, data string) (*Dentry, error)
	// KillSuperblock tears an instance down. It is also run on a
	// superblock whose fill failed.
	KillSuperblock func(ctx context.Context, sb *Superblock)
}

// Host is the in-process VFS layer: it keeps the table of registered
// filesystem types and the live superblocks, and provides the generic
// block device mount helper.
type Host struct {
	mu     sync.Mutex
	types  map[string]*FilesystemType
	supers map[*Superblock]struct{}
	log    *slog.Logger
}

// NewHost returns an empty host. A nil logger discards output.
func NewHost(log *slog.Logger) *Host {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Host{
		types:  make(map[string]*FilesystemType),
		supers: make(map[*Superblock]struct{}),
		log:    log,
	}
}

// RegisterFilesystem publishes t. A second type with the same name or the
// same magic is rejected with ErrBusy, so is registering t twice.
func (h *Host) RegisterFilesystem(t *FilesystemType) error {
	if t == nil || t.Name == "" || t.Mount == nil {
		return ErrInvalidArgument
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.types[t.Name]; ok {
		return ErrBusy
	}
	for _, other := range h.types {
		if other.Magic == t.Magic {
			return ErrBusy
		}
	}
	h.types[t.Name] = t
	h.log.Debug("filesystem type registered", "op", "logfs.Host.RegisterFilesystem", "type", t.Name)
	return nil
}

// UnregisterFilesystem withdraws t. It fails with ErrBusy while any
// instance of t is still alive.
func (h *Host) UnregisterFilesystem(t *FilesystemType) error {
	if t == nil {
		return ErrInvalidArgument
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.types[t.Name] != t {
		return ErrNotRegistered
	}
	for sb := range h.supers {
		if sb.fsType == t {
			return ErrBusy
		}
	}
	delete(h.types, t.Name)
	h.log.Debug("filesystem type unregistered", "op", "logfs.Host.UnregisterFilesystem", "type", t.Name)
	return nil
}

// Filesystems returns the registered type names in sorted order.
func (h *Host) Filesystems() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.types))
	for name := range h.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Superblocks returns the mounted instances ordered by device.
func (h *Host) Superblocks() []*Superblock {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Superblock
	for sb := range h.supers {
		if sb.State() == StateMounted {
			out = append(out, sb)
		}
	}
	slices.SortFunc(out, func(a, b *Superblock) int {
		if c := strings.Compare(a.Device, b.Device); c != 0 {
			return c
		}
		return strings.Compare(a.UUID.String(), b.UUID.String())
	})
	return out
}

// Mount mounts an instance of the type registered as typeName. The root's
// superblock must carry the type's magic; a mismatch kills the instance.
func (h *Host) Mount(ctx context.Context, typeName string, flags MountFlags, device, data string) (*Dentry, error) {
	h.mu.Lock()
	t, ok := h.types[typeName]
	h.mu.Unlock()
	if !ok {
		return nil, ErrUnknownFilesystem
	}
	if t.RequiresDevice && device == "" {
		return nil, ErrNoDevice
	}

	root, err := t.Mount(ctx, t, flags, device, data)
	if err != nil {
		return nil, err
	}
	if root == nil || root.inode == nil || root.inode.sb == nil {
		return nil, errors.New("logfs: mount returned no root")
	}

	sb := root.inode.sb
	if sb.Magic != t.Magic {
		h.log.Error("superblock magic mismatch",
			"op", "logfs.Host.Mount",
			"type", t.Name,
			"device", device,
			"want", t.Magic,
			"got", sb.Magic,
		)
		h.kill(ctx, t, sb)
		return nil, ErrBadMagic
	}

	h.mu.Lock()
	h.supers[sb] = struct{}{}
	h.mu.Unlock()
	sb.setState(StateMounted)
	return root, nil
}

// MountBlockDevice is the generic helper for device backed types: it claims
// device, allocates a superblock and runs fill on it. A failed fill kills
// the superblock and releases the device.
func (h *Host) MountBlockDevice(ctx context.Context, t *FilesystemType, flags MountFlags, device, data string, fill SuperblockFiller) (*Dentry, error) {
	if device == "" {
		return nil, ErrNoDevice
	}

	h.mu.Lock()
	for other := range h.supers {
		if other.Device == device {
			h.mu.Unlock()
			return nil, ErrBusy
		}
	}
	sb := newSuperblock(t, device, flags)
	h.supers[sb] = struct{}{}
	h.mu.Unlock()

	if err := fill.FillSuper(ctx, sb, data, flags&MountSilent != 0); err != nil {
		h.kill(ctx, t, sb)
		return nil, err
	}
	root := sb.Root()
	if root == nil {
		h.kill(ctx, t, sb)
		return nil, ErrOutOfMemory
	}
	return root, nil
}

// Unmount tears down a mounted instance.
func (h *Host) Unmount(ctx context.Context, sb *Superblock) error {
	h.mu.Lock()
	_, ok := h.supers[sb]
	h.mu.Unlock()
	if !ok || sb.State() != StateMounted {
		return ErrNotMounted
	}
	h.kill(ctx, sb.fsType, sb)
	return nil
}

func (h *Host) kill(ctx context.Context, t *FilesystemType, sb *Superblock) {
	if t != nil && t.KillSuperblock != nil {
		t.KillSuperblock(ctx, sb)
	} else {
		sb.kill()
	}
	sb.setState(StateUnmounted)
	h.mu.Lock()
	delete(h.supers, sb)
	h.mu.Unlock()
}
