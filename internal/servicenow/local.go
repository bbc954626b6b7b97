package servicenow

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// NumberSource allocates human-readable change numbers.
type NumberSource interface {
	NextChangeNumber() (string, error)
}

// Local mints change records without an external instance. It is the wiring
// used when no ServiceNow credentials are configured, so the chatbot stays
// usable in demos and local development.
type Local struct {
	numbers NumberSource
}

func NewLocal(numbers NumberSource) *Local {
	return &Local{numbers: numbers}
}

// CreateChangeRequest allocates the next CHG number and a synthetic sys_id.
func (l *Local) CreateChangeRequest(ctx context.Context, fields map[string]string) (Record, error) {
	number, err := l.numbers.NextChangeNumber()
	if err != nil {
		return Record{}, err
	}
	return Record{
		SysID:  strings.ReplaceAll(uuid.New().String(), "-", ""),
		Number: number,
		State:  "New",
	}, nil
}
