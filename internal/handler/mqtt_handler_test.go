package handler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ppg-screening/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient implements only Publish; any other call panics on the nil
// embedded interface.
type fakeClient struct {
	mqtt.Client
	topics   []string
	payloads [][]byte
	token    *fakeToken
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return c.token
}

func TestMessageHandler_Dispatch(t *testing.T) {
	store := &fakeStore{}
	p := newTestProcessor(store)
	h := NewMessageHandler(p, zap.NewNop())

	entry, err := json.Marshal(models.ManualEntryMessage{UserID: "u1", Systolic: 128, Diastolic: 82})
	require.NoError(t, err)
	h(nil, &fakeMessage{topic: TopicManualEntry, payload: entry})
	require.Equal(t, 1, store.count())
	assert.Equal(t, 128, store.readings[0].Systolic)

	rejected, err := json.Marshal(models.ManualEntryMessage{UserID: "u1", Systolic: 115, Diastolic: 125})
	require.NoError(t, err)
	h(nil, &fakeMessage{topic: TopicManualEntry, payload: rejected})
	assert.Equal(t, 1, store.count())

	_, err = p.SubmitCapture(context.Background(), sineUpload("u2", 30))
	require.NoError(t, err)
	action, err := json.Marshal(models.SessionActionMessage{UserID: "u2", Action: ActionFinish})
	require.NoError(t, err)
	h(nil, &fakeMessage{topic: TopicSessionAction, payload: action})
	assert.Equal(t, 2, store.count())

	h(nil, &fakeMessage{topic: "ppg/unknown", payload: entry})
	assert.Equal(t, 2, store.count())
}

func TestReportTopic(t *testing.T) {
	assert.Equal(t, "ppg/report/user-7", ReportTopic("user-7"))
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{token: newFakeToken(nil, true)}
	pub := NewMQTTPublisher(client)

	err := pub.Publish(context.Background(), models.ReportPayload{UserID: "u1", ReadingID: "r1"})
	require.NoError(t, err)
	require.Equal(t, []string{"ppg/report/u1"}, client.topics)

	var got models.ReportPayload
	require.NoError(t, json.Unmarshal(client.payloads[0], &got))
	assert.Equal(t, "r1", got.ReadingID)
}

func TestMQTTPublisher_Errors(t *testing.T) {
	failing := &fakeClient{token: newFakeToken(errors.New("not connected"), true)}
	err := NewMQTTPublisher(failing).Publish(context.Background(), models.ReportPayload{UserID: "u1"})
	assert.EqualError(t, err, "not connected")

	stuck := &fakeClient{token: newFakeToken(nil, false)}
	pub := NewMQTTPublisher(stuck)
	pub.timeout = 10 * time.Millisecond
	err = pub.Publish(context.Background(), models.ReportPayload{UserID: "u1"})
	assert.ErrorContains(t, err, "timed out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.timeout = time.Second
	err = pub.Publish(ctx, models.ReportPayload{UserID: "u1"})
	assert.ErrorIs(t, err, context.Canceled)
}
