// Package vision talks to the multimodal model that reads product details off
// shelf crops and judges visual matches against catalog photos. All calls go
// through an OpenRouter-style chat completion endpoint with JSON-only
// responses; decoding tolerates the usual model formatting quirks.
package vision
