package logfs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

const defaultRootMode os.FileMode = 0o755

// mountOptions is the parsed form of the mount data string, e.g.
// "mode=0700,uid=1000,gid=1000,nr_inodes=4096".
type mountOptions struct {
	mode      os.FileMode
	uid, gid  uint32
	hasUid    bool
	hasGid    bool
	maxInodes int64 // 0 keeps the driver's limit
}

func parseMountOptions(data string) (mountOptions, error) {
	opts := mountOptions{mode: defaultRootMode}
	for _, opt := range strings.Split(data, ",") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		key, value, ok := strings.Cut(opt, "=")
		if !ok || value == "" {
			return opts, fmt.Errorf("%w: mount option %q needs a value", ErrInvalidArgument, opt)
		}
		switch key {
		case "mode":
			m, err := strconv.ParseUint(value, 8, 32)
			if err != nil || m > 0o7777 {
				return opts, fmt.Errorf("%w: bad mode %q", ErrInvalidArgument, value)
			}
			opts.mode = os.FileMode(m & 0o777)
			if m&0o2000 != 0 {
				opts.mode |= os.ModeSetgid
			}
			if m&0o1000 != 0 {
				opts.mode |= os.ModeSticky
			}
		case "uid":
			id, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return opts, fmt.Errorf("%w: bad uid %q", ErrInvalidArgument, value)
			}
			opts.uid, opts.hasUid = uint32(id), true
		case "gid":
			id, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return opts, fmt.Errorf("%w: bad gid %q", ErrInvalidArgument, value)
			}
			opts.gid, opts.hasGid = uint32(id), true
		case "nr_inodes":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil || n < 1 {
				return opts, fmt.Errorf("%w: bad nr_inodes %q", ErrInvalidArgument, value)
			}
			opts.maxInodes = n
		default:
			return opts, fmt.Errorf("%w: unknown mount option %q", ErrInvalidArgument, key)
		}
	}
	return opts, nil
}

// rootCredentials applies the uid= and gid= overrides to the mounter's
// credentials.
func (o mountOptions) rootCredentials(c Credentials) Credentials {
	if o.hasUid {
		c.Uid = o.uid
	}
	if o.hasGid {
		c.Gid = o.gid
	}
	return c
}

func (o mountOptions) limits(base Limits) Limits {
	if o.maxInodes > 0 {
		base.MaxInodes = o.maxInodes
	}
	return base
}
