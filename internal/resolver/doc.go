// Package resolver implements the media acquisition stages: fetching
// audio and captions for a submitted video reference with yt-dlp, then
// producing a transcript from captions or local speech-to-text.
package resolver
