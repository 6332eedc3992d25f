package httpadapter

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

// streamEvents writes the answer event sequence as server-sent events, one
// `data:` frame per event, flushing after each so chunks reach the client
// as they are produced. Returns the terminal event, or nil if the stream
// ended without one (client gone, writer broken).
func streamEvents(w http.ResponseWriter, events <-chan domain.StreamEvent, observe func(domain.StreamEvent)) *domain.StreamEvent {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming is not supported by response writer"})
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var terminal *domain.StreamEvent
	for event := range events {
		if observe != nil {
			observe(event)
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return terminal
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return terminal
		}
		flusher.Flush()
		if event.Terminal() {
			event := event
			terminal = &event
		}
	}
	return terminal
}

// decodeConversationContext parses the client-supplied context parameter:
// URL-safe base64 over a JSON array of prior turns. An empty value is a
// fresh session; a malformed one is rejected rather than silently ignored
// so clients notice broken serialization.
func decodeConversationContext(raw string) ([]domain.ConversationTurn, error) {
	if raw == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(raw)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "context parameter is not valid base64", err)
		}
	}

	var turns []domain.ConversationTurn
	if err := json.Unmarshal(decoded, &turns); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "context parameter is not a valid turn list", err)
	}
	return turns, nil
}

// encodeConversationContext is the inverse of decodeConversationContext,
// exported on the package surface so tests and client examples build the
// parameter the same way.
func EncodeConversationContext(turns []domain.ConversationTurn) (string, error) {
	if len(turns) == 0 {
		return "", nil
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload), nil
}
