package daybook

import "github.com/xraph/daybook/id"

// ID is the primary identifier type for all Daybook entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
