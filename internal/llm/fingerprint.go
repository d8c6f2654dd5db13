package llm

import (
	"encoding/json"
	"fmt"
)

// modelsFingerprint keys the parameterless models listing.
const modelsFingerprint = "list_models"

// fingerprint derives the cache key for a chat request: a canonical JSON
// serialization of the semantically meaningful fields. Marshaling goes
// through a map so keys come out sorted, making the string independent of
// how the request was assembled; any change to model, messages, or
// generation parameters changes the key.
func fingerprint(req ChatRequest) (string, error) {
	msgs := make([]map[string]string, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = map[string]string{"role": m.Role, "content": m.Content}
	}

	canonical := map[string]any{
		"model":       req.Model,
		"messages":    msgs,
		"stream":      req.Stream,
		"temperature": req.Temperature,
	}
	if req.MaxTokens > 0 {
		canonical["max_tokens"] = req.MaxTokens
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("fingerprint request: %w", err)
	}
	return string(b), nil
}
