// Package rangepull provides a resumable, parallel HTTP range downloader.
// It fetches a single remote resource into a local file by issuing many
// concurrent byte-range requests, and persists progress to a side-car
// ledger file so an interrupted download can be resumed without
// re-fetching completed ranges.
package rangepull
