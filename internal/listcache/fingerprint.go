package listcache

import (
	"os"
	"syscall"
)

// Fingerprint is a cheap composite identity for a directory's current state.
// Change time and inode are included to catch rename-in-place edits that
// leave the modification time untouched.
type Fingerprint struct {
	Size    int64
	ModTime int64
	CTime   int64
	Inode   uint64
}

// PathFingerprint computes the fingerprint for a path with a single stat
// call. Callers must not hold the cache lock; this does filesystem I/O.
func PathFingerprint(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}

	fp := Fingerprint{
		Size:    info.Size(),
		ModTime: info.ModTime().Unix(),
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		fp.Inode = st.Ino
		fp.CTime = st.Ctim.Sec
	}

	return fp, nil
}
