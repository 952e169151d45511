package vfs

import (
	"io/fs"
	"sort"
	"strings"
	"time"
)

// Entry is an immutable metadata snapshot of one filesystem object.
type Entry struct {
	Name      string
	Path      Path
	IsDir     bool
	Size      uint64 // meaningless for directories
	ModTime   time.Time
	Mode      fs.FileMode
	IsRemote  bool
	IsSymlink bool
	// LinkTarget is only filled in for local symlinks.
	LinkTarget string
}

// NewEntry builds an entry for p from info. The backend tag is taken from p.
func NewEntry(p Path, info fs.FileInfo) Entry {
	e := Entry{
		Name:     p.Base(),
		Path:     p,
		IsDir:    info.IsDir(),
		ModTime:  info.ModTime(),
		Mode:     info.Mode(),
		IsRemote: p.IsRemote(),
	}
	if !e.IsDir && info.Size() > 0 {
		e.Size = uint64(info.Size())
	}
	return e
}

// SortEntries orders directories first, then by name. Local listings fold
// case like the original browser, remote listings compare bytes.
func SortEntries(entries []Entry, foldCase bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		a, b := entries[i].Name, entries[j].Name
		if foldCase {
			la, lb := strings.ToLower(a), strings.ToLower(b)
			if la != lb {
				return la < lb
			}
		}
		return a < b
	})
}
