//go:build !windows

package source

import (
	"os"
	"syscall"
)

func inodeOf(f *os.File) (uint64, bool) {
	info, err := f.Stat()
	if err != nil {
		return 0, false
	}
	return inodeOfStat(info)
}

func inodeOfStat(info os.FileInfo) (uint64, bool) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return sys.Ino, true
}
