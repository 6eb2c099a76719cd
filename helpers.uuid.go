package main

import (
	"strings"

	"github.com/gofrs/uuid"
)

var _ UIDHandler = (*IDsHandler)(nil)

// UIDHandler generates and checks prefixed ids such as "r:<uuid>".
type UIDHandler interface {
	Generate(prefix string) string
	IsValid(id, prefix string) bool
}

// IDsHandler builds ids from random v4 uuids.
type IDsHandler struct{}

func NewIDsHandler() *IDsHandler {
	return &IDsHandler{}
}

// Generate returns prefix:uuid. A time based uuid is used if the random source fails.
func (idh *IDsHandler) Generate(prefix string) string {
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Must(uuid.NewV1())
	}
	return prefix + ":" + id.String()
}

// IsValid reports whether id is the prefix followed by a non nil uuid.
func (idh *IDsHandler) IsValid(id, prefix string) bool {
	raw, ok := strings.CutPrefix(id, prefix+":")
	if !ok {
		return false
	}
	u, err := uuid.FromString(raw)
	return err == nil && u != uuid.Nil
}
