package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// wireDocument mirrors the metadata service response body.
type wireDocument struct {
	DocumentIncarnation int         `json:"DocumentIncarnation"`
	Events              []wireEvent `json:"Events"`
}

type wireEvent struct {
	EventID           string   `json:"EventId"`
	EventType         string   `json:"EventType"`
	ResourceType      string   `json:"ResourceType"`
	Resources         []string `json:"Resources"`
	EventStatus       string   `json:"EventStatus"`
	NotBefore         string   `json:"NotBefore"`
	Description       string   `json:"Description"`
	EventSource       string   `json:"EventSource"`
	DurationInSeconds int      `json:"DurationInSeconds"`
}

// DecodeBatch parses a scheduled events document.
func DecodeBatch(r io.Reader) (*Batch, error) {
	var doc wireDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode scheduled events: %w", err)
	}

	batch := &Batch{
		DocumentIncarnation: doc.DocumentIncarnation,
		Events:              make([]Event, 0, len(doc.Events)),
	}
	for _, we := range doc.Events {
		batch.Events = append(batch.Events, Event{
			ID:                we.EventID,
			Type:              ParseType(we.EventType),
			RawType:           we.EventType,
			Status:            ParseStatus(we.EventStatus),
			NotBefore:         ParseNotBefore(we.NotBefore),
			NotBeforeRaw:      we.NotBefore,
			Resources:         we.Resources,
			ResourceType:      we.ResourceType,
			Description:       we.Description,
			Source:            we.EventSource,
			DurationInSeconds: we.DurationInSeconds,
		})
	}
	return batch, nil
}

// notBeforeLayouts are tried in order. The metadata service uses RFC 1123.
var notBeforeLayouts = []string{
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339,
}

// ParseNotBefore returns nil for empty or unparseable input.
func ParseNotBefore(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range notBeforeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
