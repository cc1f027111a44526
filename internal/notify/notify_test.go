package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/floodgatehq/floodgate/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDeliversEvent(t *testing.T) {
	received := make(chan Event, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		received <- event
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, slog.Default())
	w.Notify(context.Background(), Event{
		Action:   "upload",
		Resource: "proj",
		Provider: "localfs",
		Path:     "/a.txt",
		Identity: auth.Identity{ID: "user-1"},
		Time:     time.Now().UTC(),
	})
	w.Wait()

	select {
	case event := <-received:
		assert.Equal(t, "upload", event.Action)
		assert.Equal(t, "proj", event.Resource)
		assert.Equal(t, "user-1", event.Identity.ID)
	default:
		t.Fatal("no event delivered")
	}
}

func TestWebhookFailureIsSilent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, slog.Default())
	// Must not panic or surface anything.
	w.Notify(context.Background(), Event{Action: "delete"})
	w.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestNoop(t *testing.T) {
	Noop{}.Notify(context.Background(), Event{Action: "upload"})
}
