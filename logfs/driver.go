package logfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dendrascience/logfs/internal/metrics"
	"github.com/dendrascience/logfs/journal"
)

// RegistrationState is the driver's standing with its host.
type RegistrationState int32

const (
	StateUnregistered RegistrationState = iota
	StateRegistered
)

func (s RegistrationState) String() string {
	if s == StateRegistered {
		return "registered"
	}
	return "unregistered"
}

// Driver is the logfs mount lifecycle manager. It owns the process-scoped
// state shared by all its instances: the inode serial counter and the
// registration record. Register must precede any Mount; Unregister is
// accepted only after every instance is unmounted.
type Driver struct {
	host     *Host
	fsType   *FilesystemType
	counter  *InodeCounter
	factory  *InodeFactory
	rec      *recorder
	log      *slog.Logger
	newAlloc func(Limits) Allocator
	limits   Limits

	mu    sync.Mutex
	state RegistrationState
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(log *slog.Logger) Option {
	return func(d *Driver) { d.log = log }
}

// WithJournal records every operation into j.
func WithJournal(j *journal.Journal) Option {
	return func(d *Driver) { d.rec.journal = j }
}

// WithMetrics reports operations to m. A nil m disables metrics.
func WithMetrics(m metrics.FSMetrics) Option {
	return func(d *Driver) { d.rec.metrics = m }
}

// WithLimits bounds every instance. The nr_inodes mount option overrides
// the inode limit per instance.
func WithLimits(l Limits) Option {
	return func(d *Driver) { d.limits = l }
}

// WithAllocator replaces the quota allocator given to new instances.
func WithAllocator(f func(Limits) Allocator) Option {
	return func(d *Driver) { d.newAlloc = f }
}

// WithClock sets the time source for timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.rec.now = now }
}

// NewDriver returns an unregistered driver bound to host.
func NewDriver(host *Host, opts ...Option) *Driver {
	d := &Driver{
		host:     host,
		counter:  &InodeCounter{},
		rec:      &recorder{},
		newAlloc: NewQuota,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.New(slog.DiscardHandler)
	}
	d.rec.log = d.log
	if d.host == nil {
		d.host = NewHost(d.log)
	}
	d.factory = NewInodeFactory(d.counter)
	d.factory.rec = d.rec
	d.fsType = &FilesystemType{
		Name:           FilesystemName,
		Magic:          Magic,
		RequiresDevice: true,
		Mount:          d.mount,
		KillSuperblock: d.killSuperblock,
	}
	return d
}

func (d *Driver) Host() *Host { return d.host }

func (d *Driver) Type() *FilesystemType { return d.fsType }

// Counter returns the serial allocator shared by the driver's instances.
func (d *Driver) Counter() *InodeCounter { return d.counter }

func (d *Driver) State() RegistrationState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Register publishes the logfs type to the host. Registering twice is a
// caller error reported by the host.
func (d *Driver) Register(ctx context.Context) error {
	start := d.rec.clock()
	err := d.host.RegisterFilesystem(d.fsType)
	d.rec.observe("register", "", 0, FilesystemName, start, err)
	log := d.log.With("op", "logfs.Driver.Register")
	if err != nil {
		log.Error("failed to register logfs", "error", err, "errno", int(Errno(err)))
		return fmt.Errorf("register %s: %w", FilesystemName, err)
	}
	d.mu.Lock()
	d.state = StateRegistered
	d.mu.Unlock()
	log.Info("successfully registered logfs")
	return nil
}

// Unregister withdraws the logfs type. The host refuses while instances
// are still mounted.
func (d *Driver) Unregister(ctx context.Context) error {
	start := d.rec.clock()
	err := d.host.UnregisterFilesystem(d.fsType)
	d.rec.observe("unregister", "", 0, FilesystemName, start, err)
	log := d.log.With("op", "logfs.Driver.Unregister")
	if err != nil {
		log.Error("failed to unregister logfs", "error", err, "errno", int(Errno(err)))
		return fmt.Errorf("unregister %s: %w", FilesystemName, err)
	}
	d.mu.Lock()
	d.state = StateUnregistered
	d.mu.Unlock()
	log.Info("successfully unregistered logfs")
	return nil
}

// Mount mounts a new instance on device. Failures come back as a
// *MountError carrying the cause.
func (d *Driver) Mount(ctx context.Context, device string, flags MountFlags, data string) (*Superblock, error) {
	start := d.rec.clock()
	root, err := d.host.Mount(ctx, FilesystemName, flags, device, data)
	d.rec.observe("mount", device, 0, "", start, err)
	if err != nil {
		var merr *MountError
		if !errors.As(err, &merr) {
			err = &MountError{Device: device, Err: err}
		}
		return nil, err
	}
	d.reportMounted()
	return root.inode.sb, nil
}

// Unmount tears sb down. No data needs flushing.
func (d *Driver) Unmount(ctx context.Context, sb *Superblock) error {
	start := d.rec.clock()
	err := d.host.Unmount(ctx, sb)
	d.rec.observe("unmount", sb.Device, 0, "", start, err)
	if err != nil {
		return fmt.Errorf("unmount %s: %w", sb.Device, err)
	}
	d.reportMounted()
	return nil
}

// Mounted returns the live logfs instances.
func (d *Driver) Mounted() []*Superblock {
	var out []*Superblock
	for _, sb := range d.host.Superblocks() {
		if sb.fsType == d.fsType {
			out = append(out, sb)
		}
	}
	return out
}

func (d *Driver) reportMounted() {
	if d.rec.metrics != nil {
		d.rec.metrics.SetMountedInstances(len(d.Mounted()))
	}
}

func (d *Driver) mount(ctx context.Context, t *FilesystemType, flags MountFlags, device, data string) (*Dentry, error) {
	log := d.log.With("op", "logfs.Driver.mount")
	root, err := d.host.MountBlockDevice(ctx, t, flags, device, data, d)
	if err != nil {
		if flags&MountSilent == 0 {
			log.Error("error mounting logfs", "device", device, "error", err)
		}
		return nil, err
	}
	log.Info(fmt.Sprintf("logfs is successfully mounted on [%s]", device),
		"device", device,
		"uuid", root.inode.sb.UUID.String(),
		"flags", flags.String(),
	)
	return root, nil
}

func (d *Driver) killSuperblock(ctx context.Context, sb *Superblock) {
	wasMounted := sb.State() == StateMounted
	sb.kill()
	log := d.log.With("op", "logfs.Driver.killSuperblock", "device", sb.Device, "uuid", sb.UUID.String())
	if !wasMounted {
		// never mounted: fill failed or the host rejected it
		log.Debug("logfs superblock is destroyed before mount completed")
		return
	}
	log.Info("logfs superblock is destroyed, unmount successful")
}

// FillSuper initializes sb as a logfs instance: magic, allocator, root
// inode and root dentry. On failure the superblock holds no root and the
// caller kills it.
func (d *Driver) FillSuper(ctx context.Context, sb *Superblock, data string, silent bool) error {
	start := d.rec.clock()
	err := d.fillSuper(ctx, sb, data)
	d.rec.observe("fill_super", sb.Device, 0, "", start, err)
	if err != nil && !silent {
		d.log.Error("fill_super failed", "op", "logfs.Driver.FillSuper", "device", sb.Device, "error", err)
	}
	return err
}

func (d *Driver) fillSuper(ctx context.Context, sb *Superblock, data string) error {
	opts, err := parseMountOptions(data)
	if err != nil {
		return err
	}

	sb.Magic = Magic
	sb.opts = opts
	sb.alloc = d.newAlloc(opts.limits(d.limits))
	sb.factory = d.factory
	sb.rec = d.rec

	cred := opts.rootCredentials(CredentialsFrom(ctx))
	inode, err := d.factory.New(WithCredentials(ctx, cred), sb, nil, os.ModeDir|opts.mode, 0)
	if err != nil {
		if !errors.Is(err, ErrOutOfMemory) {
			err = fmt.Errorf("%w: root inode: %w", ErrOutOfMemory, err)
		}
		return err
	}
	inode.iop = sb.resolver
	inode.fop = sb.resolver

	if err := sb.alloc.ReserveDentry(); err != nil {
		sb.evict(inode)
		if !errors.Is(err, ErrOutOfMemory) {
			err = fmt.Errorf("%w: root dentry: %w", ErrOutOfMemory, err)
		}
		return &OpError{Op: "make_root", Device: sb.Device, Ino: inode.Ino, Err: err}
	}
	sb.dentries.Add(1)

	root := newDentry(nil, "/", inode)
	inode.dir.self = root
	sb.mu.Lock()
	sb.root = root
	sb.mu.Unlock()
	return nil
}
