package object

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/opendiamond-go/adiskd/internal/constants"
	"github.com/opendiamond-go/adiskd/internal/interfaces"
)

// Iterator is a stateful, single-consumer cursor over a flat object-store
// directory. It is the Go analogue of odisk_state_t plus odisk_next_obj:
// Next loads one object per call, skipping attribute sidecar files and
// non-regular directory entries, and logging (rather than failing on) a
// single object's load error.
type Iterator struct {
	dir     string
	log     interfaces.Logger
	entries godirwalk.Dirents
	pos     int
}

// NewIterator opens dir for scanning. The directory's entries are read
// once, up front, and sorted for reproducible iteration order; Next then
// walks a cursor over that batch so memory use is independent of how many
// objects Next is eventually asked to yield.
func NewIterator(dir string, log interfaces.Logger) (*Iterator, error) {
	entries, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		return nil, err
	}
	sort.Sort(entries)
	return &Iterator{dir: dir, log: log, entries: entries}, nil
}

// Next returns the next object in the directory, or (nil, false) once the
// directory is exhausted. A per-object read failure is logged and skipped
// rather than returned, matching the original's "printf and continue"
// behavior for a single bad file.
func (it *Iterator) Next() (*Object, bool) {
	for it.pos < len(it.entries) {
		ent := it.entries[it.pos]
		it.pos++

		if !ent.IsRegular() {
			continue
		}
		if strings.HasSuffix(ent.Name(), constants.AttrFileExt) {
			continue
		}

		obj, err := it.load(ent.Name())
		if err != nil {
			if it.log != nil {
				it.log.Warn("failed to load object", "name", ent.Name(), "error", err)
			}
			continue
		}
		return obj, true
	}
	return nil, false
}

func (it *Iterator) load(name string) (*Object, error) {
	path := filepath.Join(it.dir, name)
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	attrs := NewAttrSet()
	attrPath := path + constants.AttrFileExt
	if f, err := os.Open(attrPath); err == nil {
		defer f.Close()
		loaded, err := ReadAttrFile(f)
		if err != nil {
			if it.log != nil {
				it.log.Warn("failed to parse attribute sidecar", "name", name, "error", err)
			}
		} else {
			attrs = loaded
		}
	}

	return &Object{Name: name, Payload: payload, Attrs: attrs}, nil
}

// Close releases any resources held by the iterator. The current
// implementation reads its directory batch eagerly, so Close is a no-op
// kept for interface symmetry with the original's odisk_term.
func (it *Iterator) Close() error {
	return nil
}
