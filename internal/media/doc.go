// Package media defines the normalized descriptor returned to clients and the
// media kinds a retrieval can produce.
package media
