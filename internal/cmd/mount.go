package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/dendrascience/logfs/fusefs"
	"github.com/dendrascience/logfs/internal/config"
	"github.com/dendrascience/logfs/internal/logger"
	"github.com/dendrascience/logfs/internal/metrics"
	prommetrics "github.com/dendrascience/logfs/internal/metrics/prometheus"
	"github.com/dendrascience/logfs/internal/status"
	"github.com/dendrascience/logfs/journal"
	"github.com/dendrascience/logfs/logfs"
	"github.com/dendrascience/logfs/version"
	"github.com/spf13/cobra"
)

type mountFlags struct {
	options    string
	readOnly   bool
	allowOther bool
	journalOut string
	statusAddr string
}

// NewMountCmd creates and returns the mount subcommand for the logfs CLI.
func NewMountCmd(configPath *string) *cobra.Command {
	var flags mountFlags

	cmd := &cobra.Command{
		Use:   "mount DEVICE MOUNTPOINT",
		Short: "Mount a logfs instance",
		Long: `Mount a logfs instance at the specified mountpoint.

DEVICE names the instance; two live instances cannot share a device.
MOUNTPOINT is the directory where the filesystem will be mounted.

The filesystem is served until interrupted. On shutdown the instance is
unmounted, the filesystem type unregistered and, when --journal-out is
set, the activity journal saved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			applyMountFlags(cmd, cfg, flags)
			return runMount(cmd.Context(), cfg, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&flags.options, "options", "o", "", "Mount options, e.g. mode=0755,uid=1000,nr_inodes=4096")
	cmd.Flags().BoolVar(&flags.readOnly, "read-only", false, "Mount read-only")
	cmd.Flags().BoolVar(&flags.allowOther, "allow-other", false, "Allow other users to access the mount")
	cmd.Flags().StringVar(&flags.journalOut, "journal-out", "", "Save the activity journal here on unmount")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "Serve status endpoints on this address")

	return cmd
}

// applyMountFlags lets explicitly set flags override the configuration.
func applyMountFlags(cmd *cobra.Command, cfg *config.Config, flags mountFlags) {
	if cmd.Flags().Changed("options") {
		cfg.Mount.Options = flags.options
	}
	if cmd.Flags().Changed("read-only") {
		cfg.Mount.ReadOnly = flags.readOnly
	}
	if cmd.Flags().Changed("allow-other") {
		cfg.Mount.AllowOther = flags.allowOther
	}
	if cmd.Flags().Changed("journal-out") {
		cfg.Journal.Output = flags.journalOut
	}
	if cmd.Flags().Changed("status-addr") {
		cfg.Status.Enabled = true
		cfg.Status.Addr = flags.statusAddr
	}
}

func runMount(ctx context.Context, cfg *config.Config, device, mountpoint string) error {
	for _, out := range []string{cfg.Logging.Output, cfg.Journal.Output} {
		if outputInside(out, mountpoint) {
			return fmt.Errorf("output %s must not be inside the mountpoint %s", out, mountpoint)
		}
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
	log = log.With("op", "cmd.mount")
	log.Info(fmt.Sprintf("logfs %s starting...", version.GetFullVersion()))

	metrics.InitRegistry()
	j := journal.New(cfg.Journal.Capacity)
	driver := logfs.NewDriver(logfs.NewHost(log),
		logfs.WithLogger(log),
		logfs.WithJournal(j),
		logfs.WithMetrics(prommetrics.NewFSMetrics()),
		logfs.WithLimits(logfs.Limits{
			MaxInodes:   cfg.Limits.MaxInodes,
			MaxDentries: cfg.Limits.MaxDentries,
		}),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := driver.Register(ctx); err != nil {
		return err
	}
	defer func() {
		if err := driver.Unregister(context.Background()); err != nil {
			log.Error("unregister failed", "error", err)
		}
		if cfg.Journal.Output != "" {
			if err := j.Save(cfg.Journal.Output); err != nil {
				log.Error("failed to save journal", "path", cfg.Journal.Output, "error", err)
				return
			}
			log.Info("journal saved", "path", cfg.Journal.Output, "records", j.Len())
		}
	}()

	var flags logfs.MountFlags
	if cfg.Mount.ReadOnly {
		flags |= logfs.MountReadOnly
	}
	sb, err := driver.Mount(ctx, device, flags, cfg.Mount.Options)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Unmount(context.Background(), sb); err != nil {
			log.Error("unmount failed", "error", err)
		}
	}()

	opts := []fuse.MountOption{
		fuse.FSName(device),
		fuse.Subtype(logfs.FilesystemName),
	}
	if cfg.Mount.ReadOnly {
		opts = append(opts, fuse.ReadOnly())
	}
	if cfg.Mount.AllowOther {
		opts = append(opts, fuse.AllowOther())
	}
	c, err := fuse.Mount(mountpoint, opts...)
	if err != nil {
		return fmt.Errorf("fuse mount %s: %w", mountpoint, err)
	}
	defer c.Close()

	if cfg.Status.Enabled {
		srv := status.NewServer(cfg.Status.Addr,
			status.NewRouter(driver, j, metrics.GetRegistry(), log),
			cfg.ShutdownTimeout, log)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error("status server stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info("received interrupt signal, shutting down...")
		if err := fuse.Unmount(mountpoint); err != nil {
			log.Error("fuse unmount failed", "mountpoint", mountpoint, "error", err)
		}
	}()

	log.Info(fmt.Sprintf("logfs %s mounted at %s", version.GetVersion(), mountpoint),
		slog.String("device", device),
		slog.String("uuid", sb.UUID.String()),
	)
	if err := fs.Serve(c, fusefs.New(sb, log)); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve %s: %w", mountpoint, err)
	}
	log.Info("shutdown complete")
	return nil
}

func isFilePath(output string) bool {
	switch strings.ToLower(output) {
	case "", "stdout", "stderr":
		return false
	}
	return true
}

// outputInside reports whether writing to output would write into the
// filesystem served at mountpoint. Stream outputs never do.
func outputInside(output, mountpoint string) bool {
	return isFilePath(output) && pathsOverlap(output, mountpoint)
}

// pathsOverlap reports whether one of the paths is inside the other.
func pathsOverlap(path1, path2 string) bool {
	abs1, err1 := filepath.Abs(path1)
	abs2, err2 := filepath.Abs(path2)
	if err1 != nil || err2 != nil {
		return filepath.Clean(path1) == filepath.Clean(path2)
	}
	return within(abs1, abs2) || within(abs2, abs1)
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
