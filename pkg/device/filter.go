package device

import (
	"errors"
	"iter"
)

// IdentityFilter passes only events whose vendor:product pair is in a fixed
// set.
type IdentityFilter struct {
	ids []Identity
	set map[Identity]struct{}
}

// NewIdentityFilter validates every id up front. Each half must be exactly
// four hex digits; case does not matter. An empty set is rejected since it
// could never match anything.
func NewIdentityFilter(ids ...Identity) (*IdentityFilter, error) {
	if len(ids) == 0 {
		return nil, newError(InvalidIdentity, "identity filter", errors.New("no identities configured"))
	}
	f := &IdentityFilter{
		ids: make([]Identity, 0, len(ids)),
		set: make(map[Identity]struct{}, len(ids)),
	}
	for _, id := range ids {
		norm, err := id.Normalize()
		if err != nil {
			return nil, err
		}
		if _, dup := f.set[norm]; dup {
			continue
		}
		f.set[norm] = struct{}{}
		f.ids = append(f.ids, norm)
	}
	return f, nil
}

// Identities returns the normalized ids in the order supplied.
func (f *IdentityFilter) Identities() []Identity {
	out := make([]Identity, len(f.ids))
	copy(out, f.ids)
	return out
}

// Match reports whether vendor:product is one of the configured pairs.
func (f *IdentityFilter) Match(vendorID, productID string) bool {
	_, ok := f.set[Identity{VendorID: vendorID, ProductID: productID}]
	return ok
}

// Apply narrows events to matching identities. Errors pass through.
func (f *IdentityFilter) Apply(events iter.Seq2[Event, error]) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range events {
			if err != nil {
				if !yield(ev, err) {
					return
				}
				continue
			}
			if !f.Match(ev.VendorID, ev.ProductID) {
				continue
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Filter validates ids and returns events narrowed to them. Validation
// happens here, before anything is pulled from events.
func Filter(events iter.Seq2[Event, error], ids ...Identity) (iter.Seq2[Event, error], error) {
	f, err := NewIdentityFilter(ids...)
	if err != nil {
		return nil, err
	}
	return f.Apply(events), nil
}
