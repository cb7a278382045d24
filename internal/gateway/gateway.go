package gateway

import "context"

// Messenger delivers text and images to phones through the external
// WhatsApp-compatible gateway. Sends are fire-and-forget from the caller's
// perspective: a failed send is logged by the caller and never rolls back
// state that was already committed.
type Messenger interface {
	// SendText delivers a plain text message to the phone.
	SendText(ctx context.Context, phone, body string) error

	// SendImage delivers an image by reference with a caption.
	SendImage(ctx context.Context, phone, imageRef, caption string) error
}
