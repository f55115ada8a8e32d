package handlers

import "errors"

var (
	errMissingUserID = errors.New("missing required field")
	errForbidden     = errors.New("identity does not match conversation")
)
