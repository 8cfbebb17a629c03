// Package services defines the business logic for lead synchronization,
// webhook ingestion, and dashboard aggregation. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrWorkspaceNotFound indicates that the named workspace does not exist
	// in the registry or is not active.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrSyncInProgress is returned when a reconciliation run is requested
	// while another run is still executing. Runs are strictly sequential.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrUnknownEvent is returned for webhook payloads whose event type is
	// not in the routing table.
	ErrUnknownEvent = errors.New("unknown event type")

	// ErrMissingEventData is returned when a webhook payload lacks the data
	// its event type requires (e.g. no lead on a reply event).
	ErrMissingEventData = errors.New("missing event data")

	// ErrInvalidDateRange is returned when a dashboard query's date range is
	// malformed or inverted.
	ErrInvalidDateRange = errors.New("invalid date range")
)
