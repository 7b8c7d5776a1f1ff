package cache

import (
	"github.com/tiercache/tiercache/internal/config"
	"github.com/tiercache/tiercache/pkg/types"
)

// Decision says which write-behind tiers should receive an entry.
type Decision struct {
	Durable bool
	Network bool
}

// Policy decides, per entry, whether it is written through to the
// durable and network tiers. Durable persistence is allow-listed and
// deny-listed by resource type with a hard size cap; the network tier
// only ever sees its configured types.
type Policy struct {
	maxPersistSize int64
	always         map[types.ResourceType]bool
	never          map[types.ResourceType]bool
	network        map[types.ResourceType]bool
}

// NewPolicy builds the policy from its configuration lists.
func NewPolicy(cfg config.PolicyConfig) *Policy {
	return &Policy{
		maxPersistSize: cfg.MaxPersistSize,
		always:         typeSet(cfg.AlwaysPersist),
		never:          typeSet(cfg.NeverPersist),
		network:        typeSet(cfg.NetworkTypes),
	}
}

// Decide returns the write-behind decision for an entry. Entries over
// the size cap never persist durably; the always list wins over the
// never list when a type appears in both.
func (p *Policy) Decide(entry *types.CacheEntry) Decision {
	var d Decision

	if entry.EstimatedSize() <= p.maxPersistSize {
		switch {
		case p.always[entry.Type]:
			d.Durable = true
		case p.never[entry.Type]:
			d.Durable = false
		default:
			d.Durable = true
		}
	}

	d.Network = p.network[entry.Type]
	return d
}

func typeSet(names []string) map[types.ResourceType]bool {
	set := make(map[types.ResourceType]bool, len(names))
	for _, name := range names {
		set[types.ResourceType(name)] = true
	}
	return set
}
