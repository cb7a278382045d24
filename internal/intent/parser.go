package intent

import (
	"context"

	"antarin/internal/model"
)

// Intent classifies what the customer meant with their message.
type Intent string

const (
	IntentOrderIncomplete Intent = "ORDER_INCOMPLETE"
	IntentOrderComplete   Intent = "ORDER_COMPLETE"
	IntentConfirmFinal    Intent = "CONFIRM_FINAL"
	IntentCheckStatus     Intent = "CHECK_STATUS"
	IntentCancel          Intent = "CANCEL"
	IntentChitchat        Intent = "CHITCHAT"
)

// Request carries the customer text plus the structured context the parser
// needs to resolve references across turns.
type Request struct {
	Phone       string            `json:"phone"`
	Text        string            `json:"text"`
	Draft       *model.DraftOrder `json:"draft,omitempty"`
	OrderStatus string            `json:"order_status,omitempty"`
}

// Result is the parser's verdict. Extracted carries any order fields found
// in the text; ReplyText is the suggested conversational reply. The core
// trusts this output as-is.
type Result struct {
	Intent    Intent            `json:"intent"`
	Extracted *model.DraftOrder `json:"extracted_fields,omitempty"`
	ReplyText string            `json:"reply_text"`
}

// Parser is the pluggable order-intent parser. The NLU engine behind it is
// external; this core only consumes its contract.
type Parser interface {
	Parse(ctx context.Context, req Request) (*Result, error)
}
