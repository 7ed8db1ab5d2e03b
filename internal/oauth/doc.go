// Package oauth manages Dropbox authorization: the browser-based PKCE
// flow served on a local endpoint, per-account token storage, and
// automatic access token refresh for remote intake and archival.
package oauth
