//go:build linux

package watcher

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Statfs f_type magic numbers from linux/magic.h.
const (
	nfsSuperMagic  = 0x6969
	smbSuperMagic  = 0x517b
	smb2SuperMagic = 0xfe534d42
	cifsSuperMagic = 0xff534d42
	fuseSuperMagic = 0x65735546
)

func detectFilesystemType(path string) FilesystemType {
	st, err := statfsNearest(path)
	if err != nil {
		return FSTypeUnknown
	}
	switch uint32(st.Type) {
	case nfsSuperMagic:
		return FSTypeNFS
	case smbSuperMagic, smb2SuperMagic, cifsSuperMagic:
		return FSTypeSMB
	case fuseSuperMagic:
		// Statfs cannot tell FUSE filesystems apart; the mount table can.
		if isSSHFSMount(path) {
			return FSTypeSSHFS
		}
		return FSTypeFUSE
	default:
		return FSTypeLocal
	}
}

// statfsNearest walks up from path until a statfs call succeeds, so a
// store that does not exist yet still classifies by its parent directory.
func statfsNearest(path string) (unix.Statfs_t, error) {
	var st unix.Statfs_t
	p := path
	for {
		err := unix.Statfs(p, &st)
		if err == nil {
			return st, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			return st, err
		}
		p = parent
	}
}

// isSSHFSMount reports whether the longest mount-point prefix of path in
// /proc/mounts is an sshfs mount.
func isSSHFSMount(path string) bool {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return false
	}
	defer f.Close()

	var bestPoint, bestType string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		point, fsType := fields[1], fields[2]
		if strings.HasPrefix(path, point) && len(point) > len(bestPoint) {
			bestPoint, bestType = point, fsType
		}
	}
	return strings.Contains(bestType, "sshfs")
}
