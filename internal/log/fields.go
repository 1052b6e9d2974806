package log

// Common field names for structured logging
const (
	FieldComponent      = "component"
	FieldRequestID      = "request_id"
	FieldMethod         = "method"
	FieldPath           = "path"
	FieldStatusCode     = "status_code"
	FieldDuration       = "duration_ms"
	FieldError          = "error"
	FieldOperation      = "operation"
	FieldUserID         = "user_id"
	FieldPaymentID      = "payment_id"
	FieldAction         = "action"
	FieldYearMonth      = "year_month"
	FieldAmount         = "amount"
	FieldCategory       = "category"
	FieldWebhookEventID = "webhook_event_id"
	FieldEventType      = "event_type"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentWebhook = "webhook"
	ComponentFlow    = "flow"
	ComponentLedger  = "ledger"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentCache   = "cache"
)

// Operations defines standard operation names
const (
	OpRecord   = "record"
	OpDelete   = "delete"
	OpReply    = "reply"
	OpExport   = "export"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// Fields collects structured log attributes.
type Fields map[string]any

// NewFields creates a new Fields instance
func NewFields() Fields {
	return make(Fields)
}

func (f Fields) WithError(err error) Fields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f Fields) WithOperation(op string) Fields {
	f[FieldOperation] = op
	return f
}

// WithEvent adds the identifiers of an inbound chat event.
func (f Fields) WithEvent(userID, webhookEventID string) Fields {
	f[FieldUserID] = userID
	if webhookEventID != "" {
		f[FieldWebhookEventID] = webhookEventID
	}
	return f
}

// WithPayment adds payment-related fields
func (f Fields) WithPayment(paymentID, category string, amount int64, yearMonth string) Fields {
	f[FieldPaymentID] = paymentID
	f[FieldCategory] = category
	f[FieldAmount] = amount
	f[FieldYearMonth] = yearMonth
	return f
}

// ToSlice converts Fields to a slice for slog
func (f Fields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
