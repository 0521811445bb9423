//go:build linux

package persist

import (
	"fmt"
	"os"
	"os/user"
	"strconv"

	"golang.org/x/sys/unix"
)

// defaultDirMode is the mode given to created directories whose spec leaves
// the mode unspecified, matching what a plain mkdir would produce.
const defaultDirMode os.FileMode = 0o755

// fileAttrs holds resolved ownership and permissions for one directory.
// A uid or gid of -1 leaves ownership as created; hasMode false does the
// same for the mode.
type fileAttrs struct {
	uid     int
	gid     int
	mode    os.FileMode
	hasMode bool
}

func noAttrs() fileAttrs {
	return fileAttrs{uid: -1, gid: -1}
}

// specAttrs resolves the spec's user/group/mode strings into concrete ids.
// Names are looked up in the user database; numeric ids are accepted as-is.
func specAttrs(spec DirectorySpec) (fileAttrs, error) {
	attrs := noAttrs()

	if spec.User != "" {
		uid, err := lookupUID(spec.User)
		if err != nil {
			return fileAttrs{}, err
		}

		attrs.uid = uid
	}

	if spec.Group != "" {
		gid, err := lookupGID(spec.Group)
		if err != nil {
			return fileAttrs{}, err
		}

		attrs.gid = gid
	}

	if spec.Mode != "" {
		mode, err := ParseMode(spec.Mode)
		if err != nil {
			return fileAttrs{}, err
		}

		attrs.mode = mode
		attrs.hasMode = true
	}

	return attrs, nil
}

// statAttrs reads ownership and permission bits from an existing path.
func statAttrs(path string) (fileAttrs, error) {
	var stat unix.Stat_t

	err := unix.Stat(path, &stat)
	if err != nil {
		return fileAttrs{}, fmt.Errorf("stat %q: %w", path, err)
	}

	return fileAttrs{
		uid:     int(stat.Uid),
		gid:     int(stat.Gid),
		mode:    modeFromUnix(stat.Mode),
		hasMode: true,
	}, nil
}

// applyAttrs applies ownership first, then the mode, so a chown cannot
// strip freshly applied setuid/setgid bits.
//
// When fallbackMode is true and attrs carries no mode, the path is chmod'd
// to the mkdir default instead; staging directories are created 0700 and
// must not leak that mode into the final location.
func applyAttrs(path string, attrs fileAttrs, fallbackMode bool) error {
	if attrs.uid >= 0 || attrs.gid >= 0 {
		err := os.Chown(path, attrs.uid, attrs.gid)
		if err != nil {
			return fmt.Errorf("chown %q: %w", path, err)
		}
	}

	mode := attrs.mode
	if !attrs.hasMode {
		if !fallbackMode {
			return nil
		}

		mode = defaultDirMode
	}

	err := os.Chmod(path, mode)
	if err != nil {
		return fmt.Errorf("chmod %q: %w", path, err)
	}

	return nil
}

// ParseMode parses an octal permission string such as "0755", "755" or
// "2770" into a file mode, mapping the setuid/setgid/sticky bits onto their
// os.FileMode equivalents.
func ParseMode(mode string) (os.FileMode, error) {
	parsed, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: expected octal permissions: %w", mode, err)
	}

	if parsed > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: value out of range", mode)
	}

	return modeFromUnix(uint32(parsed)), nil
}

// formatMode renders a mode back into the octal form accepted by ParseMode.
func formatMode(mode os.FileMode) string {
	return fmt.Sprintf("%04o", unixPermBits(mode))
}

func modeFromUnix(raw uint32) os.FileMode {
	mode := os.FileMode(raw & 0o777)

	if raw&unix.S_ISUID != 0 {
		mode |= os.ModeSetuid
	}

	if raw&unix.S_ISGID != 0 {
		mode |= os.ModeSetgid
	}

	if raw&unix.S_ISVTX != 0 {
		mode |= os.ModeSticky
	}

	return mode
}

func unixPermBits(mode os.FileMode) uint32 {
	bits := uint32(mode & os.ModePerm)

	if mode&os.ModeSetuid != 0 {
		bits |= unix.S_ISUID
	}

	if mode&os.ModeSetgid != 0 {
		bits |= unix.S_ISGID
	}

	if mode&os.ModeSticky != 0 {
		bits |= unix.S_ISVTX
	}

	return bits
}

func lookupUID(name string) (int, error) {
	numeric, err := strconv.Atoi(name)
	if err == nil {
		return numeric, nil
	}

	entry, err := user.Lookup(name)
	if err != nil {
		return 0, fmt.Errorf("resolving user %q: %w", name, err)
	}

	uid, err := strconv.Atoi(entry.Uid)
	if err != nil {
		return 0, fmt.Errorf("resolving user %q: non-numeric uid %q: %w", name, entry.Uid, err)
	}

	return uid, nil
}

func lookupGID(name string) (int, error) {
	numeric, err := strconv.Atoi(name)
	if err == nil {
		return numeric, nil
	}

	entry, err := user.LookupGroup(name)
	if err != nil {
		return 0, fmt.Errorf("resolving group %q: %w", name, err)
	}

	gid, err := strconv.Atoi(entry.Gid)
	if err != nil {
		return 0, fmt.Errorf("resolving group %q: non-numeric gid %q: %w", name, entry.Gid, err)
	}

	return gid, nil
}
