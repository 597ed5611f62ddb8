package poller

import (
	"encoding/json"
	"regexp"

	"github.com/davshaw/gengate/internal/core/domain"
)

var videoURLPattern = regexp.MustCompile(`https?://[^\s"\\]+\.mp4[^\s"\\]*`)

// ExtractResultURL pulls the generated asset URL out of a terminal
// provider payload. Strategies run in order: the creations array,
// well-known scalar fields at top level or under "data", then a raw
// scan for an mp4 link anywhere in the document. Returns
// domain.ErrResultMissing when nothing matches.
func ExtractResultURL(payload []byte) (string, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err == nil {
		if url := extractFromDoc(doc); url != "" {
			return url, nil
		}
		for _, wrapper := range []string{"data", "content"} {
			if inner, ok := doc[wrapper].(map[string]interface{}); ok {
				if url := extractFromDoc(inner); url != "" {
					return url, nil
				}
			}
		}
	}

	if match := videoURLPattern.FindString(string(payload)); match != "" {
		return match, nil
	}
	return "", domain.ErrResultMissing
}

var scalarURLFields = []string{"video_url", "url", "result_url"}

func extractFromDoc(doc map[string]interface{}) string {
	if creations, ok := doc["creations"].([]interface{}); ok && len(creations) > 0 {
		if first, ok := creations[0].(map[string]interface{}); ok {
			if url, ok := first["url"].(string); ok && url != "" {
				return url
			}
		}
	}

	for _, field := range scalarURLFields {
		if url, ok := doc[field].(string); ok && url != "" {
			return url
		}
	}
	return ""
}

var reasonFields = []string{"err_msg", "error_message", "fail_reason", "message", "error"}

// failReason mines a human-readable failure message out of a terminal
// payload. Best effort; an empty string is fine.
func failReason(payload []byte) string {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ""
	}
	if reason := reasonFromDoc(doc); reason != "" {
		return reason
	}
	if data, ok := doc["data"].(map[string]interface{}); ok {
		return reasonFromDoc(data)
	}
	return ""
}

func reasonFromDoc(doc map[string]interface{}) string {
	for _, field := range reasonFields {
		if reason, ok := doc[field].(string); ok && reason != "" {
			return reason
		}
	}
	return ""
}
