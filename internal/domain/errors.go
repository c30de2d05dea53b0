package domain

import "errors"

// ErrInvalidRequest indicates that a resolution request contains invalid data.
var ErrInvalidRequest = errors.New("invalid resolution request")

// ErrInvalidURL indicates that the resolution endpoint is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid resolution url")

// ErrInvalidDecision indicates that a decision payload could not be decoded.
var ErrInvalidDecision = errors.New("invalid decision payload")

// ErrInvalidLocale indicates that a locale tag could not be parsed.
var ErrInvalidLocale = errors.New("invalid locale")
