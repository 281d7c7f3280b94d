package graph

import (
	"context"

	"github.com/mesh-intelligence/notegraph/pkg/types"
)

// Driver performs the remote operations for one entity. The Field Model
// selects the call from the entity's state.
type Driver interface {
	// Fetch returns the remote record, or nil with no error if it does not
	// exist.
	Fetch(ctx context.Context) (types.Record, error)

	// FlushCreate creates the record. It may return a PendingFollowup that
	// the flush loop runs once the entity has been marked done.
	FlushCreate(ctx context.Context, g *FlushGraph) (types.Record, PendingFollowup, error)

	// FlushUpdate writes the changed fields. A nil record means the working
	// values are now the backing values.
	FlushUpdate(ctx context.Context, g *FlushGraph) (types.Record, error)

	// FlushDelete removes the record.
	FlushDelete(ctx context.Context, g *FlushGraph) error
}

// PendingFollowup is the second step of a two-phase create. It runs after
// the graph has advanced past the created entity.
type PendingFollowup func(ctx context.Context) error

// DriverFactory returns the Driver for an entity.
type DriverFactory func(e Entity) Driver

// FlushGraph is the view of an in-progress flush handed to drivers.
type FlushGraph struct {
	sorter    *sorter
	followups []PendingFollowup
}

func newFlushGraph(s *sorter) *FlushGraph {
	return &FlushGraph{sorter: s}
}

// Done marks e as flushed. Drivers call it for entities they completed as a
// side effect. Entities outside the graph are ignored.
func (g *FlushGraph) Done(e Entity) {
	g.sorter.done(e)
}

// Contains reports whether e is part of this flush.
func (g *FlushGraph) Contains(e Entity) bool {
	return g.sorter.contains(e)
}

func (g *FlushGraph) addFollowup(f PendingFollowup) {
	g.followups = append(g.followups, f)
}

// runFollowups consumes queued followups in order.
func (g *FlushGraph) runFollowups(ctx context.Context) error {
	for len(g.followups) > 0 {
		f := g.followups[0]
		g.followups = g.followups[1:]
		if err := f(ctx); err != nil {
			return err
		}
	}
	return nil
}

// remoteDrivers builds the default drivers backed by a types.Remote.
func remoteDrivers(remote types.Remote) DriverFactory {
	return func(e Entity) Driver {
		switch v := e.(type) {
		case *Note:
			return &noteDriver{note: v, remote: remote}
		case *Attribute:
			return &attributeDriver{attr: v, remote: remote}
		case *Branch:
			return &branchDriver{branch: v, remote: remote}
		}
		return nil
	}
}
