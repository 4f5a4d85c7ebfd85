package sensorfeed

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/lanepilot/internal/monitoring"
	"github.com/banshee-data/lanepilot/internal/radar"
)

var (
	ErrWriteFailed = errors.New("failed to write to sensor port")
	ErrClosed      = errors.New("sensor feed closed")
)

// maxFrameBytes bounds a single line. A frame with a few hundred returns
// stays well under this.
const maxFrameBytes = 256 * 1024

// Stats counts what the feed has seen since it was created.
type Stats struct {
	Lines       uint64 `json:"lines"`
	Batches     uint64 `json:"batches"`
	Other       uint64 `json:"other"`
	ParseErrors uint64 `json:"parse_errors"`
	Overwritten uint64 `json:"overwritten"`
	LastSeq     uint64 `json:"last_seq"`
}

// Feed reads detection frames from a port and publishes each decoded batch
// into a Slot. Raw lines are also fanned out to subscribers for the debug
// tail.
type Feed[T Porter] struct {
	port T
	slot *Slot[radar.Batch]
	logf func(string, ...any)

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex

	statsMu sync.Mutex
	stats   Stats

	closing   bool
	closingMu sync.Mutex
}

// NewFeed creates a Feed reading from port. If slot is nil a new one is
// allocated; it is available from Slot.
func NewFeed[T Porter](port T, slot *Slot[radar.Batch]) *Feed[T] {
	if slot == nil {
		slot = NewSlot[radar.Batch]()
	}
	return &Feed[T]{
		port:        port,
		slot:        slot,
		logf:        monitoring.Prefixed("sensorfeed"),
		subscribers: make(map[string]chan string),
	}
}

// Slot returns the slot batches are published to.
func (f *Feed[T]) Slot() *Slot[radar.Batch] { return f.slot }

// Latest implements the agent's detection source.
func (f *Feed[T]) Latest() (radar.Batch, bool) { return f.slot.Latest() }

// Stats returns a copy of the feed counters.
func (f *Feed[T]) Stats() Stats {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	return f.stats
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe returns a channel receiving every raw line read from the port.
// Slow subscribers miss lines rather than stalling the feed.
func (f *Feed[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (f *Feed[T]) Unsubscribe(id string) {
	f.subscriberMu.Lock()
	defer f.subscriberMu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// SendCommand writes a newline-terminated command to the sensor.
func (f *Feed[T]) SendCommand(command string) error {
	if f.isClosing() {
		return ErrClosed
	}
	f.commandMu.Lock()
	defer f.commandMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := f.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines until ctx is cancelled, the port reaches EOF, or the
// feed is closed. A clean EOF returns nil.
func (f *Feed[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(f.port)
	scan.Buffer(make([]byte, 0, 4096), maxFrameBytes)

	lineChan := make(chan []byte)
	scanErrChan := make(chan error, 1)

	go func() {
		defer close(lineChan)
		for scan.Scan() {
			line := bytes.Clone(scan.Bytes())
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if f.isClosing() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					if f.isClosing() {
						return nil
					}
					return err
				default:
				}
				return nil
			}
			if f.isClosing() {
				return nil
			}
			f.handleLine(line)
		}
	}
}

func (f *Feed[T]) handleLine(line []byte) {
	batch, seq, err := ParseFrame(line)

	f.statsMu.Lock()
	f.stats.Lines++
	switch {
	case err == nil:
		f.stats.Batches++
		if seq != 0 {
			f.stats.LastSeq = seq
		}
	case errors.Is(err, ErrNotFrame):
		f.stats.Other++
	default:
		f.stats.ParseErrors++
	}
	f.statsMu.Unlock()

	switch {
	case err == nil:
		if f.slot.Put(batch) {
			f.statsMu.Lock()
			f.stats.Overwritten++
			f.statsMu.Unlock()
		}
	case errors.Is(err, ErrNotFrame):
		monitoring.Debugf("sensorfeed: ignoring line %q", line)
	default:
		f.logf("dropping malformed frame: %v", err)
	}

	text := string(line)
	f.subscriberMu.Lock()
	for _, ch := range f.subscribers {
		select {
		case ch <- text:
		default:
		}
	}
	f.subscriberMu.Unlock()
}

func (f *Feed[T]) isClosing() bool {
	f.closingMu.Lock()
	defer f.closingMu.Unlock()
	return f.closing
}

// Close closes all subscriber channels and the port. It is safe to call
// more than once; only the first call closes the port.
func (f *Feed[T]) Close() error {
	f.closingMu.Lock()
	if f.closing {
		f.closingMu.Unlock()
		return nil
	}
	f.closing = true
	f.closingMu.Unlock()

	f.subscriberMu.Lock()
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
	f.subscriberMu.Unlock()
	return f.port.Close()
}

// AttachAdminRoutes registers the feed's debug endpoints under /debug/.
func (f *Feed[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("sensor", "sensor feed counters", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(f.Stats())
	})

	debug.HandleSilentFunc("sensor-command", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := f.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to sensor", command))
	})

	debug.HandleSilentFunc("sensor-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, c := f.Subscribe()
		defer f.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
