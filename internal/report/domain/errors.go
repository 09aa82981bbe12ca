package domain

import "errors"

// Error taxonomy shared by the edge and the worker. Lower layers keep their
// own sentinels and are wrapped with these, e.g.
//
//	fmt.Errorf("%w: %w", domain.ErrNotFound, store.ErrNotFound)
//
// so callers can branch on either.
var (
	// ErrAuthentication means no trusted issuer accepted the bearer token.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization means the token was accepted but lacks a required
	// scope or role.
	ErrAuthorization = errors.New("not authorized")

	ErrLinkExpired = errors.New("link expired")
	ErrLinkInvalid = errors.New("link invalid")

	// ErrNotFound covers missing templates, artifacts and plugin entry points.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed template names, bad request bodies and
	// data fetches that do not produce a mapping.
	ErrValidation = errors.New("validation failed")

	// ErrRender is any failure while producing the document.
	ErrRender = errors.New("render failed")

	// ErrTransientStore is an object store or queue I/O failure.
	ErrTransientStore = errors.New("store unavailable")

	// ErrConfig is a template misconfiguration, such as a manifest that
	// names a plugin which is not registered.
	ErrConfig = errors.New("template misconfigured")
)
