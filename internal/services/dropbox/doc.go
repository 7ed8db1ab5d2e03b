// Package dropbox provides the minimal Dropbox HTTP API surface used by
// remote intake and archival: folder listing, file download and upload,
// moves, and account verification.
package dropbox
