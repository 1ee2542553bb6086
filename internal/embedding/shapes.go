package embedding

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Provider responses arrive in several JSON layouts. Each shape matcher
// either claims the body and extracts vectors, or passes. Matchers run in
// declaration order; the first claim wins, and a body no matcher claims is a
// hard error naming the shapes tried.
type shapeMatcher struct {
	name    string
	extract func(body gjson.Result) ([][]float32, bool, error)
}

var responseShapes = []shapeMatcher{
	{name: "workers-ai result.data objects", extract: func(body gjson.Result) ([][]float32, bool, error) {
		arr := body.Get("result.data")
		if !arr.IsArray() || !arr.Get("0.embedding").Exists() {
			return nil, false, nil
		}
		return vectorsFromObjects(arr)
	}},
	{name: "workers-ai result.data arrays", extract: func(body gjson.Result) ([][]float32, bool, error) {
		arr := body.Get("result.data")
		if !arr.IsArray() || !arr.Get("0").IsArray() {
			return nil, false, nil
		}
		return vectorsFromArrays(arr)
	}},
	{name: "openai data objects", extract: func(body gjson.Result) ([][]float32, bool, error) {
		arr := body.Get("data")
		if !arr.IsArray() || !arr.Get("0.embedding").Exists() {
			return nil, false, nil
		}
		return vectorsFromObjects(arr)
	}},
	{name: "openai data arrays", extract: func(body gjson.Result) ([][]float32, bool, error) {
		arr := body.Get("data")
		if !arr.IsArray() || !arr.Get("0").IsArray() {
			return nil, false, nil
		}
		return vectorsFromArrays(arr)
	}},
	{name: "ollama embeddings arrays", extract: func(body gjson.Result) ([][]float32, bool, error) {
		arr := body.Get("embeddings")
		if !arr.IsArray() || !arr.Get("0").IsArray() {
			return nil, false, nil
		}
		return vectorsFromArrays(arr)
	}},
	{name: "bare array of arrays", extract: func(body gjson.Result) ([][]float32, bool, error) {
		if !body.IsArray() || !body.Get("0").IsArray() {
			return nil, false, nil
		}
		return vectorsFromArrays(body)
	}},
}

// normalizeResponse turns a raw provider body into a flat list of
// equal-length vectors, or fails describing what it saw.
func normalizeResponse(raw []byte, expectedCount int) ([][]float32, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("response is not valid JSON")
	}
	body := gjson.ParseBytes(raw)

	for _, shape := range responseShapes {
		vectors, ok, err := shape.extract(body)
		if err != nil {
			return nil, fmt.Errorf("shape %q: %w", shape.name, err)
		}
		if !ok {
			continue
		}
		if err := checkVectors(vectors, expectedCount); err != nil {
			return nil, fmt.Errorf("shape %q: %w", shape.name, err)
		}
		return vectors, nil
	}

	return nil, fmt.Errorf("unrecognized embeddings response shape (tried %d known shapes)", len(responseShapes))
}

func vectorsFromObjects(arr gjson.Result) ([][]float32, bool, error) {
	items := arr.Array()
	vectors := make([][]float32, len(items))
	for i, item := range items {
		emb := item.Get("embedding")
		if !emb.IsArray() {
			return nil, false, fmt.Errorf("item %d has no embedding array", i)
		}
		vec, err := floatSlice(emb)
		if err != nil {
			return nil, false, fmt.Errorf("item %d: %w", i, err)
		}
		idx := i
		if item.Get("index").Exists() {
			idx = int(item.Get("index").Int())
		}
		if idx < 0 || idx >= len(items) {
			return nil, false, fmt.Errorf("item %d has out-of-range index %d", i, idx)
		}
		if vectors[idx] != nil {
			return nil, false, fmt.Errorf("duplicate embedding index %d", idx)
		}
		vectors[idx] = vec
	}
	return vectors, true, nil
}

func vectorsFromArrays(arr gjson.Result) ([][]float32, bool, error) {
	items := arr.Array()
	vectors := make([][]float32, len(items))
	for i, item := range items {
		vec, err := floatSlice(item)
		if err != nil {
			return nil, false, fmt.Errorf("item %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, true, nil
}

func floatSlice(arr gjson.Result) ([]float32, error) {
	items := arr.Array()
	if len(items) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	vec := make([]float32, len(items))
	for i, item := range items {
		if item.Type != gjson.Number {
			return nil, fmt.Errorf("non-numeric value at offset %d", i)
		}
		vec[i] = float32(item.Float())
	}
	return vec, nil
}

func checkVectors(vectors [][]float32, expectedCount int) error {
	if len(vectors) != expectedCount {
		return fmt.Errorf("vector count mismatch: got %d want %d", len(vectors), expectedCount)
	}
	dim := 0
	for i, vec := range vectors {
		if len(vec) == 0 {
			return fmt.Errorf("empty vector at index %d", i)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return fmt.Errorf("inconsistent dimension at index %d: got %d want %d", i, len(vec), dim)
		}
	}
	return nil
}
