package graph

import (
	"fmt"

	"github.com/mesh-intelligence/notegraph/pkg/ident"
	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Content is the blob attached to a note. It is fetched lazily and compared
// by digest, so writing back identical bytes leaves the note clean.
type Content struct {
	note          *Note
	backingDigest string
	cached        []byte
	fetched       bool
	working       []byte
	dirty         bool
}

func newContent(n *Note) *Content {
	return &Content{note: n}
}

func (c *Content) get() ([]byte, error) {
	if err := c.note.model.ensureSetup(); err != nil {
		return nil, err
	}
	if c.dirty {
		return c.working, nil
	}
	if !c.fetched {
		if c.note.model.exists {
			b, err := c.note.session.remote.GetContent(c.note.session.ctx, c.note.id)
			if err != nil {
				return nil, fmt.Errorf("fetching content of %s: %w", c.note, err)
			}
			c.cached = b
		}
		c.fetched = true
	}
	return c.cached, nil
}

func (c *Content) set(b []byte) error {
	if err := c.note.model.ensureSetup(); err != nil {
		return err
	}
	if c.note.state == types.StateDelete {
		return &InvalidStateError{Entity: c.note.String(), State: c.note.state, Op: "set content"}
	}
	c.working = append([]byte(nil), b...)
	c.dirty = true
	c.note.checkState()
	return nil
}

// pending returns the content to send and whether there is any.
func (c *Content) pending() ([]byte, bool) {
	if !c.dirty {
		return nil, false
	}
	return c.working, true
}

func (c *Content) load(rec types.Record) error {
	if nr := noteRecord(rec); nr != nil {
		c.backingDigest = nr.BlobID
	} else {
		c.backingDigest = ident.BlobID(nil)
		c.fetched = true
	}
	return nil
}

func (c *Content) changed() bool {
	return c.dirty && ident.BlobID(c.working) != c.backingDigest
}

func (c *Content) commit(rec types.Record) {
	if !c.dirty {
		return
	}
	digest := ident.BlobID(c.working)
	if nr := noteRecord(rec); nr != nil && nr.BlobID != "" {
		digest = nr.BlobID
	}
	c.backingDigest = digest
	c.cached = c.working
	c.fetched = true
	c.working = nil
	c.dirty = false
}
