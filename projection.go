package appraise

import (
	"context"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// Projector is the transformation function of one projection. It receives
// every event in the log during a rebuild and is responsible for filtering
// the fact types it cares about and upserting the documents it derives.
type Projector func(ctx context.Context, e Event, snapshots SnapshotStore) error

// Descriptor is one registry entry for a derived snapshot collection.
type Descriptor struct {
	// Name is the unique registry key, used by the replay control surface.
	Name string

	// Description is a human readable summary for operator tooling.
	Description string

	// DocType is the backing document type in the snapshot store.
	DocType string

	// TableName is the physical table or collection identifier.
	TableName string

	// Rebuildable guards the destructive rebuild path. Projections that are
	// fed from sources other than the event log must not be rebuilt from it.
	Rebuildable bool

	// Apply is the projection's transformation function.
	Apply Projector
}

// Registry is the immutable catalog of known projections. It is constructed
// once at startup and passed into the rebuilder and query handlers
// explicitly; it is read-only thereafter.
type Registry struct {
	order   []string
	entries map[string]Descriptor
}

func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{
		entries: make(map[string]Descriptor),
	}

	for _, d := range descriptors {
		if d.Name == "" {
			return nil, errors.Wrap(ErrMisconfigured, "descriptor requires a name")
		}

		if _, ok := r.entries[d.Name]; ok {
			return nil, errors.Wrap(ErrMisconfigured, "duplicate projection name", j.KV("name", d.Name))
		}

		r.order = append(r.order, d.Name)
		r.entries[d.Name] = d
	}

	return r, nil
}

// All returns every descriptor in registration order.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}

	return out
}

// Lookup returns the descriptor for name and whether it exists.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.entries[name]
	return d, ok
}

func (r *Registry) CanRebuild(name string) bool {
	d, ok := r.entries[name]
	return ok && d.Rebuildable
}

// Info is the operator facing view of a projection, including the live
// snapshot count which is computed, not stored.
type Info struct {
	Name          string
	Description   string
	TableName     string
	Rebuildable   bool
	SnapshotCount int64
}

// List returns operator information for every projection, or only the
// rebuildable ones. Counts are read live from the snapshot store.
func (r *Registry) List(ctx context.Context, snapshots SnapshotStore, rebuildableOnly bool) ([]Info, error) {
	var out []Info
	for _, name := range r.order {
		d := r.entries[name]
		if rebuildableOnly && !d.Rebuildable {
			continue
		}

		count, err := snapshots.Count(ctx, d.DocType)
		if err != nil {
			return nil, errors.Wrap(err, "count snapshots", j.KV("projection", name))
		}

		out = append(out, Info{
			Name:          d.Name,
			Description:   d.Description,
			TableName:     d.TableName,
			Rebuildable:   d.Rebuildable,
			SnapshotCount: count,
		})
	}

	return out, nil
}
