// Package messaging defines the event contract shared by publishers.
package messaging

import (
	"context"
)

// Subjects published by the storefront.
const (
	CheckoutSubjectPrefix    = "storefront.checkout"
	CheckoutCompletedSubject = CheckoutSubjectPrefix + ".completed"
	CheckoutSubjectsWildcard = CheckoutSubjectPrefix + ".>"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
