package adiskd

import "github.com/opendiamond-go/adiskd/internal/constants"

// Re-exported for public API consumers that don't need the internal tree.
const (
	DefaultControlPort   = constants.DefaultControlPort
	DefaultDataPort      = constants.DefaultDataPort
	DefaultPendMax       = constants.DefaultPendMax
	DefaultWorkahead     = constants.DefaultWorkahead
	DefaultRingCapacity  = constants.DefaultRingCapacity
	AttrFileExt          = constants.AttrFileExt
	GIDIndexPrefix       = constants.GIDIndexPrefix
)
