package cqlretrieve

import "errors"

// ErrValidation is returned when a retriever is constructed with a missing
// required collaborator.
var ErrValidation = errors.New("invalid retriever configuration")

// ErrConfiguration is returned at call time when a query needs a
// collaborator that was not configured, such as value set membership
// without a terminology service.
var ErrConfiguration = errors.New("missing collaborator")

// ErrContractViolation is returned when a composed retriever returns a nil
// result set instead of an empty one.
var ErrContractViolation = errors.New("retriever contract violation")
