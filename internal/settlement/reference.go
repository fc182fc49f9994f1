package settlement

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// ReferencePrefix marks settlement references issued by the platform.
const ReferencePrefix = "um_"

// NewReference returns a unique, time-ordered payment reference.
func NewReference() string {
	return ReferencePrefix + strings.ToLower(ulid.Make().String())
}
