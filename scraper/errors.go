package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/use-agent/prisma/models"
)

// ErrConnection marks navigation failures caused by the network, such as
// DNS resolution errors, refused connections or TLS failures.
var ErrConnection = errors.New("connection error")

// netErrorPrefix starts Chromium network error reasons, e.g.
// "net::ERR_NAME_NOT_RESOLVED".
const netErrorPrefix = "net::ERR_"

// connectionError wraps a network-level navigation failure.
func connectionError(reason string, err error) *models.Error {
	wrapped := fmt.Errorf("%w: %s", ErrConnection, reason)
	if err != nil {
		wrapped = fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return models.NewError(models.ErrCodeNetwork, "connection failed", wrapped)
}

// categorizeError converts collaborator errors into *models.Error. fallback
// is the code used when nothing more specific applies.
func categorizeError(err error, fallback, msg string) *models.Error {
	var typed *models.Error
	switch {
	case errors.As(err, &typed):
		return typed
	case errors.Is(err, ErrConnection):
		return models.NewError(models.ErrCodeNetwork, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewError(models.ErrCodeCanceled, "scrape canceled", err)
	case strings.Contains(err.Error(), netErrorPrefix):
		return connectionError("", err)
	default:
		return models.NewError(fallback, msg, err)
	}
}
