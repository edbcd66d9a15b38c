package eventstore

import (
	"fmt"

	"github.com/google/uuid"

	"example.com/backstage/services/clinops/errs"
)

func staleAppend(aggregateID uuid.UUID, expected, current int) error {
	if expected == 0 {
		return &errs.AlreadyExistsError{AggregateID: aggregateID.String()}
	}
	reason := fmt.Sprintf("expected sequence %d but another write got there first", expected)
	if current >= 0 {
		reason = fmt.Sprintf("expected sequence %d but stream is at %d", expected, current)
	}
	return &errs.ConflictError{AggregateID: aggregateID.String(), Reason: reason}
}
