package relay

import (
	"fmt"
	"net/http"

	"github.com/eachlabs/chorus/internal/provider"
)

// DescribeError turns an upstream failure into text fit to show in place
// of an answer. keyKind is provider.KeyUser when the caller paid with their
// own key; quota failures on the shared key point at a personal one.
func DescribeError(code int, message, model, keyKind string) string {
	personal := keyKind == provider.KeyUser
	switch code {
	case http.StatusTooManyRequests:
		if personal {
			return fmt.Sprintf("%s is rate limited on your API key. Wait a moment and try again, or pick another model.", model)
		}
		return fmt.Sprintf("%s is rate limited on the shared key. Add your own OpenRouter API key to keep going.", model)
	case http.StatusPaymentRequired:
		if personal {
			return fmt.Sprintf("Your API key has no credits left for %s. Top it up, or pick a free variant (\":free\").", model)
		}
		return fmt.Sprintf("%s needs a funded key. Add an OpenRouter API key with credits, or pick a free variant (\":free\").", model)
	case http.StatusRequestTimeout:
		return fmt.Sprintf("%s did not answer in time.", model)
	}
	if message != "" {
		return message
	}
	if code != 0 {
		return fmt.Sprintf("%s failed with HTTP %d.", model, code)
	}
	return fmt.Sprintf("%s failed.", model)
}

// keyKindOf reports which key a request with credential would be billed to.
func keyKindOf(credential string) string {
	if credential != "" {
		return provider.KeyUser
	}
	return provider.KeyShared
}
