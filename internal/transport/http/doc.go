// Package http contains the HTTP handlers for the license service.
//
// Handlers follow a thin-adapter pattern: they bind and validate the
// request, call the service layer, and translate service errors into
// RFC 7807 problem responses. No business logic lives here.
package http
