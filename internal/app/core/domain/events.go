package domain

// Event types
const (
	EventAccountCreated    = "account.created"
	EventAccountUpdated    = "account.updated"
	EventAccountDeleted    = "account.deleted"
	EventTransactionPosted = "transaction.posted"
)

type AccountEvent struct {
	AccountID int64  `json:"account_id"`
	IBAN      string `json:"iban,omitempty"`
	Balance   string `json:"balance,omitempty"`
}

type TransactionEvent struct {
	TransactionID   string `json:"transaction_id"`
	AccountID       int64  `json:"account_id"`
	Amount          string `json:"amount"`
	TransactionType string `json:"transaction_type"`
	Balance         string `json:"balance"`
}

func NewAccountEvent(acc Account) AccountEvent {
	return AccountEvent{
		AccountID: acc.ID,
		IBAN:      acc.IBAN,
		Balance:   FormatAmount(acc.Balance),
	}
}
