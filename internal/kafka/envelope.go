package kafka

import (
	"encoding/json"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/valyala/fastjson"
)

const cloudEventsContentType = "application/cloudevents+json"

// Unwrap returns the event document carried by a message value.
//
// Structured-mode CloudEvents (content-type header, or a top-level
// specversion next to data or data_base64) are decoded and their data
// returned. Any other value is returned unchanged.
func Unwrap(value []byte, headers map[string]string) ([]byte, error) {
	if !isCloudEvent(value, headers) {
		return value, nil
	}

	var ce cloudevents.Event
	if err := json.Unmarshal(value, &ce); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cloud event: %w", err)
	}
	data := ce.Data()
	if len(data) == 0 {
		return nil, fmt.Errorf("cloud event %s carries no data", ce.ID())
	}
	return data, nil
}

func isCloudEvent(value []byte, headers map[string]string) bool {
	if strings.HasPrefix(headers["content-type"], cloudEventsContentType) {
		return true
	}
	return fastjson.Exists(value, "specversion") &&
		(fastjson.Exists(value, "data") || fastjson.Exists(value, "data_base64"))
}
