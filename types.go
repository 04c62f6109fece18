package protopool

import "github.com/jward/protopool/internal/symbols"

// Kind names the category of a registered symbol. It is an alias of the
// internal symbols.Kind so backing stores and the pool agree on spelling.
type Kind = symbols.Kind

const (
	KindMessage   = symbols.Message
	KindEnum      = symbols.Enum
	KindEnumValue = symbols.EnumValue
	KindExtension = symbols.Extension
	KindService   = symbols.Service
	KindMethod    = symbols.Method
)
