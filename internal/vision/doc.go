// Package vision talks to an Ollama vision model.
//
// Client.Describe sends one JPEG to /api/generate and returns the model's
// description. Every failure is an *Error whose Kind tells the caller whether
// retrying can help: timeouts and server errors are transient, a malformed
// or empty response is not.
//
// ExtractTags turns a description into searchable keywords.
package vision
