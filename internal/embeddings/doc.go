// Package embeddings provides the text embedders used to build and query the
// taxonomy indexes.
//
// Three providers are available: an OpenAI-compatible HTTP API through
// langchaingo (OpenAI, OpenRouter or a TEI server in OpenAI mode), the native
// TEI /embed endpoint, and FastEmbed running local ONNX models (cgo builds
// only). NewProvider selects one from configuration.
package embeddings
