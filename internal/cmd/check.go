package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dendrascience/logfs/internal/config"
	"github.com/dendrascience/logfs/internal/logger"
	"github.com/dendrascience/logfs/logfs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewCheckCmd creates and returns the check subcommand for the logfs CLI.
func NewCheckCmd(configPath *string) *cobra.Command {
	var dirs int

	cmd := &cobra.Command{
		Use:   "check [DEVICE]",
		Short: "Exercise an in-process logfs instance",
		Long: `Mount a logfs instance in-process, without FUSE, and verify its
behavior: the superblock, the root directory, lookups, enumeration,
inode creation and the register/mount/unmount lifecycle.

Each check prints a PASS or FAIL line. The command fails if any check fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log, closeLog, err := logger.New(logger.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cfg.Logging.Output,
			})
			if err != nil {
				return err
			}
			defer closeLog()

			device := "check0"
			if len(args) == 1 {
				device = args[0]
			}
			return runChecks(cmd.Context(), cmd.OutOrStdout(), device, dirs, log)
		},
	}

	cmd.Flags().IntVar(&dirs, "dirs", 0, "Number of directories to create under the root")

	return cmd
}

type check struct {
	name string
	run  func(ctx context.Context) error
}

// runChecks mounts device on a private driver and runs every check
// against it, writing one line per check to w.
func runChecks(ctx context.Context, w io.Writer, device string, dirs int, log *slog.Logger) error {
	if dirs < 0 {
		return fmt.Errorf("dirs must not be negative, got %d", dirs)
	}
	d := logfs.NewDriver(nil, logfs.WithLogger(log))
	if err := d.Register(ctx); err != nil {
		return err
	}
	defer teardown(ctx, d, log)

	sb, err := d.Mount(ctx, device, 0, "")
	if err != nil {
		return err
	}
	root := sb.Root().Inode()

	checks := []check{
		{"superblock magic", func(context.Context) error {
			if sb.Magic != logfs.Magic {
				return fmt.Errorf("magic %#x, want %#x", sb.Magic, logfs.Magic)
			}
			return nil
		}},
		{"root is a directory", func(context.Context) error {
			if !root.IsDir() || root.Nlink() != 2 {
				return fmt.Errorf("type %v nlink %d", root.Type, root.Nlink())
			}
			return nil
		}},
		{"dot entries resolve to root", func(ctx context.Context) error {
			for _, name := range []string{".", ".."} {
				de, err := root.Lookup(ctx, name)
				if err != nil {
					return err
				}
				if de.Inode() != root {
					return fmt.Errorf("%q resolved to inode %d", name, de.Inode().Ino)
				}
			}
			return nil
		}},
		{"fresh root enumerates dot entries", func(ctx context.Context) error {
			entries, next, err := root.Iterate(ctx, 0, logfs.DefaultBatch)
			if err != nil {
				return err
			}
			if len(entries) != 2 || entries[0].Name != "." || entries[1].Name != ".." {
				return fmt.Errorf("got %d entries", len(entries))
			}
			for range 2 {
				more, _, err := root.Iterate(ctx, next, logfs.DefaultBatch)
				if err != nil {
					return err
				}
				if len(more) != 0 {
					return fmt.Errorf("continuation returned %d entries", len(more))
				}
			}
			return nil
		}},
		{"missing name is negative", func(ctx context.Context) error {
			de, err := root.Lookup(ctx, "does-not-exist")
			if err != nil {
				return err
			}
			if !de.Negative() {
				return errors.New("lookup returned a positive dentry")
			}
			return nil
		}},
		{"regular files are unsupported", func(ctx context.Context) error {
			if _, err := sb.CreateInode(ctx, root, 0o644, 0); !errors.Is(err, logfs.ErrUnsupportedType) {
				return fmt.Errorf("got %v", err)
			}
			return nil
		}},
		{"directories can be created", func(ctx context.Context) error {
			return checkDirs(ctx, root, dirs)
		}},
		{"lifecycle across devices", func(ctx context.Context) error {
			return checkLifecycle(ctx, log)
		}},
		{"inode exhaustion is reported", func(ctx context.Context) error {
			return checkExhaustion(ctx, log)
		}},
	}

	failed := 0
	for _, c := range checks {
		if err := c.run(ctx); err != nil {
			failed++
			fmt.Fprintf(w, "FAIL  %s: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(w, "PASS  %s\n", c.name)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(checks))
	}
	return nil
}

func checkDirs(ctx context.Context, root *logfs.Inode, dirs int) error {
	for range dirs {
		if _, err := root.Mkdir(ctx, uuid.NewString(), 0o755); err != nil {
			return err
		}
	}
	count := 0
	for _, err := range root.Entries(ctx, 0) {
		if err != nil {
			return err
		}
		count++
	}
	if count != dirs+2 {
		return fmt.Errorf("enumerated %d entries, want %d", count, dirs+2)
	}
	if root.Nlink() != uint32(dirs+2) {
		return fmt.Errorf("root nlink %d, want %d", root.Nlink(), dirs+2)
	}
	return nil
}

func checkLifecycle(ctx context.Context, log *slog.Logger) error {
	d := logfs.NewDriver(nil, logfs.WithLogger(log))
	if err := d.Register(ctx); err != nil {
		return err
	}
	defer teardown(ctx, d, log)

	a, err := d.Mount(ctx, "check-a", logfs.MountSilent, "")
	if err != nil {
		return err
	}
	b, err := d.Mount(ctx, "check-b", logfs.MountSilent, "")
	if err != nil {
		return err
	}
	if a.Root().Inode().Ino == b.Root().Inode().Ino {
		return errors.New("instances share a root serial")
	}
	if _, err := d.Mount(ctx, "check-a", logfs.MountSilent, ""); !errors.Is(err, logfs.ErrBusy) {
		return fmt.Errorf("second mount of a device: %v", err)
	}
	if err := d.Unmount(ctx, a); err != nil {
		return err
	}
	if err := d.Unregister(ctx); !errors.Is(err, logfs.ErrBusy) {
		return fmt.Errorf("unregister with a live instance: %v", err)
	}
	if err := d.Unmount(ctx, b); err != nil {
		return err
	}
	if err := d.Unregister(ctx); err != nil {
		return err
	}
	if _, err := d.Mount(ctx, "check-c", logfs.MountSilent, ""); !errors.Is(err, logfs.ErrUnknownFilesystem) {
		return fmt.Errorf("mount after unregister: %v", err)
	}
	return nil
}

func checkExhaustion(ctx context.Context, log *slog.Logger) error {
	d := logfs.NewDriver(nil, logfs.WithLogger(log))
	if err := d.Register(ctx); err != nil {
		return err
	}
	defer teardown(ctx, d, log)

	sb, err := d.Mount(ctx, "check-oom", logfs.MountSilent, "nr_inodes=1")
	if err != nil {
		return err
	}

	if _, err := sb.Root().Inode().Mkdir(ctx, "full", 0o755); !errors.Is(err, logfs.ErrOutOfMemory) {
		return fmt.Errorf("mkdir past the inode limit: %v", err)
	}
	if n := sb.LiveInodes(); n != 1 {
		return fmt.Errorf("%d live inodes after failed mkdir, want 1", n)
	}
	return nil
}

// teardown unmounts whatever d still has mounted and unregisters it, so a
// check that bails out early leaves no live instance behind.
func teardown(ctx context.Context, d *logfs.Driver, log *slog.Logger) {
	for _, sb := range d.Mounted() {
		if err := d.Unmount(ctx, sb); err != nil {
			log.Warn("unmount failed", "op", "cmd.check", "device", sb.Device, "error", err)
		}
	}
	if d.State() != logfs.StateRegistered {
		return
	}
	if err := d.Unregister(ctx); err != nil {
		log.Warn("unregister failed", "op", "cmd.check", "error", err)
	}
}
