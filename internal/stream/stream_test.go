package stream

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"ppg-screening/internal/capture"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	mu       sync.Mutex
	subjects []string
	views    []capture.ViewModel
	err      error
}

func (r *recorder) Publish(subject string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var v capture.ViewModel
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.subjects = append(r.subjects, subject)
	r.views = append(r.views, v)
	return r.err
}

func TestLivePublisher_ThrottlesWithinPhase(t *testing.T) {
	rec := &recorder{}
	lp := NewLivePublisher("ppg.live", 0.001, zap.NewNop(), rec)

	lp.Update(capture.ViewModel{Phase: capture.PhaseMeasuring, LiveBPM: 70})
	lp.Update(capture.ViewModel{Phase: capture.PhaseMeasuring, LiveBPM: 71})
	lp.Update(capture.ViewModel{Phase: capture.PhaseMeasuring, LiveBPM: 72})
	lp.Update(capture.ViewModel{Phase: capture.PhaseDone, LiveBPM: 72})

	sent, dropped := lp.Stats()
	assert.Equal(t, 3, sent)
	assert.Equal(t, 1, dropped)

	require.Len(t, rec.views, 3)
	assert.Equal(t, capture.PhaseDone, rec.views[2].Phase)
	assert.Equal(t, []string{"ppg.live", "ppg.live", "ppg.live"}, rec.subjects)
}

func TestLivePublisher_PublisherErrorDoesNotStopOthers(t *testing.T) {
	bad := &recorder{err: errors.New("closed")}
	good := &recorder{}
	lp := NewLivePublisher("ppg.live", 5, nil, bad, good)

	lp.Update(capture.ViewModel{Phase: capture.PhaseSetup})
	assert.Len(t, good.views, 1)
}

func TestHub_BroadcastsToViewers(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	lp := NewLivePublisher("ignored", 10, nil, hub)
	lp.Update(capture.ViewModel{Phase: capture.PhaseCountdown, Countdown: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var v capture.ViewModel
	require.NoError(t, json.Unmarshal(data, &v))
	assert.Equal(t, capture.PhaseCountdown, v.Phase)
	assert.Equal(t, 3, v.Countdown)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ConcurrentPublishersShareOneViewer(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	const writers, perWriter = 4, 200
	received := make(chan int, 1)
	go func() {
		n := 0
		for n < writers*perWriter {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			n++
		}
		received <- n
	}()

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				data, _ := json.Marshal(capture.ViewModel{Phase: capture.PhaseMeasuring, ElapsedMs: int64(w*perWriter + i)})
				_ = hub.Publish("ppg.live", data)
			}
		}()
	}
	wg.Wait()

	select {
	case n := <-received:
		assert.Equal(t, writers*perWriter, n)
	case <-time.After(10 * time.Second):
		t.Fatal("viewer did not receive all updates")
	}
	assert.Equal(t, 1, hub.Clients())
}
