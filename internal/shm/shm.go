// Package shm provides scoped attach/detach of the System V shared-memory
// segments the display server uses to back monitor pixmaps, per the
// "reattach only when the identifier changes; always detach on drop"
// resource discipline.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Region tracks at most one attached shared-memory segment at a time. It
// is not safe for concurrent use; the dispatch loop that owns it is
// single-threaded.
type Region struct {
	id     int
	mapped []byte
}

// Attach ensures segment id is mapped, remapping only if id differs from
// whatever is currently attached. It returns the full mapped segment.
func (r *Region) Attach(id int) ([]byte, error) {
	if r.mapped != nil && r.id == id {
		return r.mapped, nil
	}
	if r.mapped != nil {
		if err := unix.SysvShmDetach(r.mapped); err != nil {
			return nil, fmt.Errorf("shm: detach segment %d: %w", r.id, err)
		}
		r.mapped = nil
	}

	b, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shm: attach segment %d: %w", id, err)
	}
	r.id = id
	r.mapped = b
	return b, nil
}

// Detach releases whatever segment is currently attached, if any.
func (r *Region) Detach() error {
	if r.mapped == nil {
		return nil
	}
	id := r.id
	err := unix.SysvShmDetach(r.mapped)
	r.mapped = nil
	r.id = 0
	if err != nil {
		return fmt.Errorf("shm: detach segment %d: %w", id, err)
	}
	return nil
}

// Attached reports the currently mapped segment id and whether one is
// mapped at all.
func (r *Region) Attached() (id int, ok bool) {
	return r.id, r.mapped != nil
}
