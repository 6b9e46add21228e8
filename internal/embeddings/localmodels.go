package embeddings

import "strings"

// localModel is a model FastEmbed can run in-process. Both names are
// accepted in configuration.
type localModel struct {
	name string // Hugging Face name
	id   string // fastembed id
	dim  int
	// multilingual is false for every model fastembed-go ships today;
	// Russian audit text still embeds, with weaker recall.
	multilingual bool
}

var localModels = []localModel{
	{name: "BAAI/bge-small-en-v1.5", id: "fast-bge-small-en-v1.5", dim: 384},
	{name: "BAAI/bge-small-en", id: "fast-bge-small-en", dim: 384},
	{name: "BAAI/bge-base-en-v1.5", id: "fast-bge-base-en-v1.5", dim: 768},
	{name: "BAAI/bge-base-en", id: "fast-bge-base-en", dim: 768},
	{name: "BAAI/bge-small-zh-v1.5", id: "fast-bge-small-zh-v1.5", dim: 512},
	{name: "sentence-transformers/all-MiniLM-L6-v2", id: "fast-all-MiniLM-L6-v2", dim: 384},
}

const defaultLocalModel = "BAAI/bge-small-en-v1.5"

func lookupLocalModel(name string) (localModel, bool) {
	for _, m := range localModels {
		if strings.EqualFold(m.name, name) || strings.EqualFold(m.id, name) {
			return m, true
		}
	}
	return localModel{}, false
}

func fastEmbedModelDimension(name string) (int, bool) {
	m, ok := lookupLocalModel(name)
	return m.dim, ok
}
