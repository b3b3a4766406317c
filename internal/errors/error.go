// Package errors provides the sentinel errors shared by the storefront packages.
package errors

import "errors"

var ErrIdentityRequired = errors.New("identity required")
var ErrStorageCorrupt = errors.New("stored collection is corrupt")
var ErrStorageUnavailable = errors.New("storage unavailable")

var ErrInvalidProduct = errors.New("product id is required")
var ErrNegativePrice = errors.New("price must not be negative")

var ErrEmptyCart = errors.New("cart is empty")
var ErrSubmissionInFlight = errors.New("checkout submission already in flight")
var ErrValidationFailed = errors.New("order validation failed")
var ErrTransportFailed = errors.New("order service unavailable")

var ErrProductNotFound = errors.New("product not found")
var ErrCatalogUnavailable = errors.New("catalog unavailable")
