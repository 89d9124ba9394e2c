package ledger

const (
	operationEnsureProfile = "ensure_profile"
	operationDebit         = "debit"
	operationCredit        = "credit"

	// Statuses reported in OperationLog.
	OperationStatusOK           = "ok"
	OperationStatusError        = "error"
	OperationStatusInsufficient = "insufficient"

	// NewUserCredits is the balance every freshly provisioned profile starts with.
	NewUserCredits int64 = 1

	descriptionWelcomeCredit = "Welcome credit"

	defaultListLimit = 50
	// MaxListLimit is the largest page ListProfiles and ListTransactions accept.
	MaxListLimit = 200
)
