// Package api exposes the REST surface of the service: strategy CRUD,
// execution run submission, and run status queries. It wires the auth and
// metrics middleware around every handler.
package api
