//go:build windows

package source

import "os"

// Windows file IDs aren't exposed through os.FileInfo without extra
// syscalls; rotation detection there falls back to size regression only.
func inodeOf(f *os.File) (uint64, bool) { return 0, false }

func inodeOfStat(info os.FileInfo) (uint64, bool) { return 0, false }
