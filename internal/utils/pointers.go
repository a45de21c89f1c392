package utils

import (
	"encoding/json"
	"fmt"
)

func StringPtr(s string) *string {
	return &s
}

func MustMarshalJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("failed to marshal to JSON: %w", err))
	}
	return data
}
