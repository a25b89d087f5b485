// Package api exposes the request service that fronts metadata, retrieval, and
// artifact serving, plus the transport DTOs and an HTTP client for the daemon.
//
// Service is stateless across requests: every Fetch, Download, and Open call is
// independent and may run concurrently with any number of others. Error
// classification helpers translate the services sentinels into status codes and
// short caller-facing messages so handlers never echo subprocess output.
package api
