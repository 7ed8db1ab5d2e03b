// Package gemini wraps the Google Gemini API for transcript analysis:
// structured summaries, key takeaways, topics, and tag suggestions.
package gemini
