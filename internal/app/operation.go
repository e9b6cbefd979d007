package app

// Operation statuses recorded in the journal.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks one CLI or API session that may mutate the intake log.
// Operations are created in memory with ID=0. Only sessions that mutate
// persist them, which gives them an auto-increment ID from the database.
// That ID versions the snapshots pushed to the vault.
type Operation struct {
	ID         int64
	Operation  string
	Parameters string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(operation, parameters string) *Operation {
	return &Operation{
		Operation:  operation,
		Parameters: parameters,
		Status:     StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}
