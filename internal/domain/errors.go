// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrBackendUnavailable indicates the primary record store is unreachable.
var ErrBackendUnavailable = errors.New("primary backend unavailable")
