// Package storage maps backup artifacts to object keys and issues
// scope-limited, time-boxed presigned URLs for exactly one key and
// permission.
package storage

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// Characters allowed to survive sanitization. Server names may carry
	// dots (DNS names); database names and tickets may carry underscores.
	unsafeServerChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	unsafeNameChars   = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// BuildBlobPath composes the hierarchical object key for a backup artifact:
//
//	{prefix}/{server}/{db}/{YYYY}/{MM}/{DD}/{ticket}/db_full_{db}_{YYYYMMDD_HHMM}.bak
//
// All date components are UTC and zero-padded. The function is deterministic:
// identical inputs, including the timestamp, yield a byte-identical key, so a
// retried transition regenerates the same path instead of fragmenting storage.
// The minute-granularity timestamp is deliberately coarse; the ticket and
// database segments keep distinct jobs apart within the same minute.
func BuildBlobPath(prefix, serverDNS, dbName, ticket string, ts time.Time) string {
	ts = ts.UTC()

	server := unsafeServerChars.ReplaceAllString(serverDNS, "_")
	db := unsafeNameChars.ReplaceAllString(dbName, "_")
	safeTicket := unsafeNameChars.ReplaceAllString(ticket, "_")

	return fmt.Sprintf("%s/%s/%s/%04d/%02d/%02d/%s/db_full_%s_%s.bak",
		prefix, server, db,
		ts.Year(), int(ts.Month()), ts.Day(),
		safeTicket, db, ts.Format("20060102_1504"))
}

// BlobFilename returns the final path segment of an object key, used as the
// download filename hint. Falls back to "backup.bak" for degenerate keys.
func BlobFilename(blobPath string) string {
	parts := strings.Split(blobPath, "/")
	if name := parts[len(parts)-1]; name != "" {
		return name
	}
	return "backup.bak"
}
