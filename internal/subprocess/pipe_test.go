package subprocess

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortbus-io/shortbus-go/internal/config"
	"github.com/shortbus-io/shortbus-go/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startShell spawns /bin/sh running the given script as the fake broker.
func startShell(t *testing.T, script string, options *config.Options) *PipeTransport {
	t.Helper()

	if options == nil {
		options = &config.Options{}
	}

	options.BrokerPath = "/bin/sh"
	options.BrokerArgs = []string{"-c", script}

	transport := NewPipeTransport(testLogger(), options)
	require.NoError(t, transport.Start(context.Background()))

	t.Cleanup(func() { _ = transport.Close() })

	return transport
}

func collect(t *testing.T, ch <-chan map[string]any, want int) []map[string]any {
	t.Helper()

	var got []map[string]any

	for len(got) < want {
		select {
		case msg, ok := <-ch:
			if !ok {
				t.Fatalf("message channel closed after %d of %d messages", len(got), want)
			}

			got = append(got, msg)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d messages", len(got), want)
		}
	}

	return got
}

func TestPipeTransport_EchoRoundTrip(t *testing.T) {
	transport := startShell(t, "cat", nil)

	ctx := context.Background()
	messages, _ := transport.ReadMessages(ctx)

	require.NoError(t, transport.SendMessage(ctx, []byte(`{"op":"ping","request_id":1}`)))

	got := collect(t, messages, 1)
	assert.Equal(t, "ping", got[0]["op"])
	assert.Equal(t, float64(1), got[0]["request_id"])

	// Already-terminated data is not double-framed.
	require.NoError(t, transport.SendMessage(ctx, []byte(`{"op":"ping","request_id":2}`+"\n")))

	got = collect(t, messages, 1)
	assert.Equal(t, float64(2), got[0]["request_id"])
}

func TestPipeTransport_StreamEndsWhenInputEnds(t *testing.T) {
	transport := startShell(t, "cat", nil)

	ctx := context.Background()
	messages, errs := transport.ReadMessages(ctx)

	require.NoError(t, transport.EndInput())

	// cat exits cleanly; both channels close with no error reported.
	for {
		select {
		case err, ok := <-errs:
			if ok {
				t.Fatalf("unexpected error: %v", err)
			}

			errs = nil
		case _, ok := <-messages:
			if ok {
				t.Fatal("unexpected message")
			}

			return
		case <-time.After(5 * time.Second):
			t.Fatal("stream did not terminate")
		}
	}
}

func TestPipeTransport_SendAfterEndInputFails(t *testing.T) {
	transport := startShell(t, "cat", nil)

	require.NoError(t, transport.EndInput())

	err := transport.SendMessage(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, errors.ErrStdinClosed)
}

func TestPipeTransport_DecodeErrorDoesNotStopStream(t *testing.T) {
	script := `printf '{not json\n'; printf '{"status":"ok"}\n'`
	transport := startShell(t, script, nil)

	messages, errs := transport.ReadMessages(context.Background())

	select {
	case err := <-errs:
		var decodeErr *errors.DecodeError

		require.True(t, stderrors.As(err, &decodeErr))
		assert.Equal(t, "{not json", decodeErr.RawData)
	case <-time.After(5 * time.Second):
		t.Fatal("no decode error surfaced")
	}

	// The valid line after the malformed one still arrives.
	got := collect(t, messages, 1)
	assert.Equal(t, "ok", got[0]["status"])
}

func TestPipeTransport_BlankLinesAreSkipped(t *testing.T) {
	script := `printf '\n  \n{"status":"ok"}\n'`
	transport := startShell(t, script, nil)

	messages, _ := transport.ReadMessages(context.Background())

	got := collect(t, messages, 1)
	assert.Equal(t, "ok", got[0]["status"])
}

func TestPipeTransport_ProcessFailureSurfacesProcessError(t *testing.T) {
	script := `echo boom >&2; exit 3`
	transport := startShell(t, script, nil)

	_, errs := transport.ReadMessages(context.Background())

	for {
		select {
		case err, ok := <-errs:
			if !ok {
				t.Fatal("error channel closed without a process error")
			}

			var procErr *errors.ProcessError

			require.True(t, stderrors.As(err, &procErr))
			assert.Equal(t, 3, procErr.ExitCode)
			assert.Contains(t, procErr.Stderr, "boom")

			return
		case <-time.After(5 * time.Second):
			t.Fatal("process error never surfaced")
		}
	}
}

func TestPipeTransport_StderrSideChannel(t *testing.T) {
	var mu sync.Mutex

	var lines []string

	options := &config.Options{
		Stderr: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	}

	script := `echo diag-one >&2; echo diag-two >&2; cat`
	transport := startShell(t, script, options)

	messages, _ := transport.ReadMessages(context.Background())

	require.NoError(t, transport.EndInput())

	// Drain until the stream closes; the transport waits for the stderr
	// goroutine before closing the channels.
	for range messages {
		continue
	}

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"diag-one", "diag-two"}, lines)
}

func TestPipeTransport_ConcurrentWritesDoNotInterleave(t *testing.T) {
	transport := startShell(t, "cat", nil)

	ctx := context.Background()
	messages, _ := transport.ReadMessages(ctx)

	const writers = 10

	var wg sync.WaitGroup

	for i := range writers {
		wg.Go(func() {
			data := []byte(`{"op":"publish","request_id":` + string(rune('0'+i)) + `}`)
			assert.NoError(t, transport.SendMessage(ctx, data))
		})
	}

	wg.Wait()

	// Every line decodes: no partial interleaving occurred.
	got := collect(t, messages, writers)
	for _, msg := range got {
		assert.Equal(t, "publish", msg["op"])
	}
}

func TestPipeTransport_SendBeforeStartFails(t *testing.T) {
	transport := NewPipeTransport(testLogger(), &config.Options{})

	err := transport.SendMessage(context.Background(), []byte(`{}`))
	require.ErrorIs(t, err, errors.ErrTransportNotConnected)
}

func TestPipeTransport_CloseIsIdempotent(t *testing.T) {
	transport := startShell(t, "cat", nil)

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
}
