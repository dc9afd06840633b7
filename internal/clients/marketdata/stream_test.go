package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// sseHandler streams the given frames, then blocks until the client
// disconnects (like a real push endpoint would).
func sseHandler(t *testing.T, frames []string, sawRequest func(*http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sawRequest != nil {
			sawRequest(r)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, ok := w.(http.Flusher)
		require.True(t, ok)

		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSubscribeQuotesDeliversSnapshotsInOrder(t *testing.T) {
	frames := []string{
		`{"AAPL": 150.5, "MSFT": 401.2}`,
		`{"AAPL": 151.0}`,
	}
	server := httptest.NewServer(sseHandler(t, frames, nil))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(common.NewSilentLogger()))
	stream, err := client.SubscribeQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	defer stream.Close()

	first := <-stream.Snapshots()
	assert.Equal(t, models.QuoteSnapshot{"AAPL": 150.5, "MSFT": 401.2}, first)

	second := <-stream.Snapshots()
	assert.Equal(t, models.QuoteSnapshot{"AAPL": 151.0}, second)
}

func TestSubscribeQuotesSendsSymbolsAndCookie(t *testing.T) {
	var gotSecurities string
	var gotCookie *http.Cookie
	var gotAuth string
	server := httptest.NewServer(sseHandler(t, nil, func(r *http.Request) {
		gotSecurities = r.URL.Query().Get("securities")
		gotCookie, _ = r.Cookie("access_token_cookie")
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := NewClient(server.URL,
		WithLogger(common.NewSilentLogger()),
		WithSession("test-secret", "svc", 15*time.Minute))

	stream, err := client.SubscribeQuotes(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	defer stream.Close()

	require.Eventually(t, func() bool { return gotSecurities != "" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "AAPL,MSFT", gotSecurities)

	// Stream auth is cookie-based and bypasses the API interceptor.
	require.NotNil(t, gotCookie)
	assert.NotEmpty(t, gotCookie.Value)
	assert.Empty(t, gotAuth)
}

func TestStreamTerminatesOnTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"AAPL\": 150.5}\n\n")
		flusher.Flush()
		// The handler returns, closing the connection server-side.
	}))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(common.NewSilentLogger()))
	stream, err := client.SubscribeQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	defer stream.Close()

	snapshot, ok := <-stream.Snapshots()
	require.True(t, ok)
	assert.Equal(t, models.QuoteSnapshot{"AAPL": 150.5}, snapshot)

	// No reconnect: the channel closes and stays closed.
	select {
	case _, ok := <-stream.Snapshots():
		assert.False(t, ok, "channel must close after the transport fails")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not terminate after transport error")
	}
}

func TestCloseIsSynchronous(t *testing.T) {
	frames := []string{`{"AAPL": 150.5}`}
	server := httptest.NewServer(sseHandler(t, frames, nil))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(common.NewSilentLogger()))
	stream, err := client.SubscribeQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)

	<-stream.Snapshots()
	require.NoError(t, stream.Close())

	// After Close returns the reader has exited; nothing further arrives.
	_, ok := <-stream.Snapshots()
	assert.False(t, ok)

	// Closing twice is safe.
	require.NoError(t, stream.Close())
}

func TestMalformedFrameIsDropped(t *testing.T) {
	frames := []string{
		`not json`,
		`{"AAPL": 152.0}`,
	}
	server := httptest.NewServer(sseHandler(t, frames, nil))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(common.NewSilentLogger()))
	stream, err := client.SubscribeQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	defer stream.Close()

	snapshot := <-stream.Snapshots()
	assert.Equal(t, models.QuoteSnapshot{"AAPL": 152.0}, snapshot)
}

func TestNoPushSupportReturnsExhaustedStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "streaming unsupported", http.StatusNotImplemented)
	}))
	defer server.Close()

	client := NewClient(server.URL, WithLogger(common.NewSilentLogger()))
	stream, err := client.SubscribeQuotes(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	defer stream.Close()

	_, ok := <-stream.Snapshots()
	assert.False(t, ok, "no-push fallback must be immediately exhausted")
}
