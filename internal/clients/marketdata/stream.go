package marketdata

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aleksandr-dontsov/portfolio-manager/internal/common"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/interfaces"
	"github.com/aleksandr-dontsov/portfolio-manager/internal/models"
)

// QuoteStream is one open server-push subscription. The connection is
// scoped to exactly the symbol set it was opened with; changing symbols
// means closing and opening a new stream. On a transport error the
// snapshot channel closes and stays closed; re-subscribing is the
// caller's job.
type QuoteStream struct {
	resp      *http.Response
	snapshots chan models.QuoteSnapshot
	done      chan struct{}
	closeOnce sync.Once
	reader    sync.WaitGroup
	logger    *common.Logger
}

// SubscribeQuotes opens the quote stream for the given symbol set. The
// upstream delivers UTF-8 text frames, each a complete JSON snapshot of
// symbol to USD price. When the upstream cannot serve a push stream the
// returned subscription is immediately exhausted and a one-time warning
// is logged; valuation then runs on buy-in-only figures.
func (c *Client) SubscribeQuotes(ctx context.Context, symbols []string) (interfaces.QuoteSubscription, error) {
	params := url.Values{}
	params.Set("securities", strings.Join(symbols, ","))
	reqURL := fmt.Sprintf("%s/api/v1/securities/quotes/stream?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	// Session auth on the stream is cookie-based; the request skips the
	// API interceptor entirely.
	token, err := c.sessionToken()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: token})
	}

	c.logger.Info().Strs("symbols", symbols).Msg("Opening quote stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open quote stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK || !isEventStream(resp) {
		resp.Body.Close()
		c.pushWarn.Do(func() {
			c.logger.Warn().
				Int("status", resp.StatusCode).
				Str("content_type", resp.Header.Get("Content-Type")).
				Msg("Upstream does not support quote streaming; live updates disabled")
		})
		return newExhaustedStream(), nil
	}

	s := &QuoteStream{
		resp:      resp,
		snapshots: make(chan models.QuoteSnapshot),
		done:      make(chan struct{}),
		logger:    c.logger,
	}
	s.reader.Add(1)
	go s.read()

	return s, nil
}

func isEventStream(resp *http.Response) bool {
	contentType := resp.Header.Get("Content-Type")
	return strings.HasPrefix(contentType, "text/event-stream")
}

// Snapshots delivers complete snapshots in arrival order. The channel
// closes on transport error or teardown.
func (s *QuoteStream) Snapshots() <-chan models.QuoteSnapshot {
	return s.snapshots
}

// Close tears the connection down synchronously. The reader goroutine
// has exited before Close returns, so no snapshot is delivered
// afterwards. Safe to call more than once.
func (s *QuoteStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.resp.Body.Close()
	})
	s.reader.Wait()
	return nil
}

// read parses server-sent event frames off the response body: one or
// more "data:" lines terminated by a blank line form one snapshot.
func (s *QuoteStream) read() {
	defer s.reader.Done()
	defer close(s.snapshots)
	defer s.resp.Body.Close()

	scanner := bufio.NewScanner(s.resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if data.Len() > 0 {
				s.dispatch(data.String())
				data.Reset()
			}
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(payload))
		}
		// Comment and other SSE fields are ignored.
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-s.done:
			// Teardown closed the body; not a transport failure.
		default:
			s.logger.Warn().Err(err).Msg("Quote stream terminated")
		}
	}
}

// dispatch decodes one frame and hands it to the consumer, aborting if
// the stream is being torn down.
func (s *QuoteStream) dispatch(payload string) {
	var snapshot models.QuoteSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("Dropping malformed quote frame")
		return
	}

	select {
	case s.snapshots <- snapshot:
	case <-s.done:
	}
}

// exhaustedStream is the no-push fallback: an already-closed stream.
type exhaustedStream struct {
	snapshots chan models.QuoteSnapshot
}

func newExhaustedStream() *exhaustedStream {
	s := &exhaustedStream{snapshots: make(chan models.QuoteSnapshot)}
	close(s.snapshots)
	return s
}

func (s *exhaustedStream) Snapshots() <-chan models.QuoteSnapshot { return s.snapshots }

func (s *exhaustedStream) Close() error { return nil }
