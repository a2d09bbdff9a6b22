package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldOperation     = "operation"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
	FieldRuleID        = "rule_id"
	FieldRuleName      = "rule_name"
	FieldBudgetID      = "budget_id"
	FieldBudgetName    = "budget_name"
	FieldExecutionID   = "execution_id"
	FieldExecutionDate = "execution_date"
	FieldTransactionID = "transaction_id"
	FieldPeriod        = "period"
	FieldCurrency      = "currency"
	FieldStatus        = "status"
	FieldAsOf          = "as_of"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentScheduler = "scheduler"
	ComponentBudget    = "budget"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentMetrics   = "metrics"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpList     = "list"
	OpExecute  = "execute"
	OpSweep    = "sweep"
	OpRefresh  = "refresh"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithRule adds rule identification fields
func (f LogFields) WithRule(id int64, name string) LogFields {
	f[FieldRuleID] = id
	f[FieldRuleName] = name
	return f
}

// WithBudget adds budget identification fields
func (f LogFields) WithBudget(id int64, name string) LogFields {
	f[FieldBudgetID] = id
	f[FieldBudgetName] = name
	return f
}

// WithTransaction adds the ledger transaction id
func (f LogFields) WithTransaction(id string) LogFields {
	f[FieldTransactionID] = id
	return f
}

// WithExecution adds execution journal fields
func (f LogFields) WithExecution(id int64, date, status string) LogFields {
	f[FieldExecutionID] = id
	f[FieldExecutionDate] = date
	f[FieldStatus] = status
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
