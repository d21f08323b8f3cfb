package gemini

import (
	"errors"

	"google.golang.org/genai"
)

func asAPIError(err error, target *genai.APIError) bool {
	var value genai.APIError
	if errors.As(err, &value) {
		*target = value
		return true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		*target = *ptr
		return true
	}
	return false
}
