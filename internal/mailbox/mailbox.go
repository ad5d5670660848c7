// internal/mailbox/mailbox.go
package mailbox

import (
	"context"
	"time"

	"github.com/xkilldash9x/erplogin/internal/erp/extract"
)

// DefaultQuery is the sender filter the portal's OTP emails match.
const DefaultQuery = "from:erpkgp@adm.iitkgp.ac.in"

// DefaultMaxResults is how many matching messages a search asks for. Only the newest is read.
const DefaultMaxResults = 5

// MessageRef identifies a message returned by a search, newest first.
type MessageRef struct {
	ID string
}

// Message is a fully fetched message. Payload body data is base64url encoded.
type Message struct {
	ID           string
	InternalDate time.Time
	Payload      extract.MessagePart
}

// Mailbox is the email provider collaborator. Implementations hold their own bearer token.
type Mailbox interface {
	// Search returns message stubs matching query, newest first.
	Search(ctx context.Context, query string, maxResults int) ([]MessageRef, error)
	// FetchFull returns the complete message including its MIME payload.
	FetchFull(ctx context.Context, id string) (*Message, error)
}
