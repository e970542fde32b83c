package orch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceAgent/internal/app"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/dkeye/VoiceAgent/internal/token"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type enableCall struct {
	source  domain.TrackSource
	enabled bool
}

type fakeTransport struct {
	mu          sync.Mutex
	events      core.TransportEvents
	connectErr  error
	enableErr   map[domain.TrackSource]error
	connects    int
	disconnects int
	calls       []enableCall
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{enableErr: make(map[domain.TrackSource]error)}
}

func (f *fakeTransport) Connect(_ context.Context, _, _ string, _ core.ConnectOptions) error {
	f.mu.Lock()
	f.connects++
	err := f.connectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.phase(domain.PhaseConnected)
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SetTrackEnabled(_ context.Context, source domain.TrackSource, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, enableCall{source: source, enabled: enabled})
	if enabled {
		return f.enableErr[source]
	}
	return nil
}

func (f *fakeTransport) Subscribe(ev core.TransportEvents) func() {
	f.mu.Lock()
	f.events = ev
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.events = core.TransportEvents{}
		f.mu.Unlock()
	}
}

func (f *fakeTransport) phase(p domain.ConnectionPhase) {
	f.mu.Lock()
	fn := f.events.OnPhase
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeTransport) tracks(ts ...domain.TrackRef) {
	f.mu.Lock()
	fn := f.events.OnTracks
	f.mu.Unlock()
	if fn != nil {
		fn(ts)
	}
}

func (f *fakeTransport) data(msg core.DataMessage) {
	f.mu.Lock()
	fn := f.events.OnData
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (f *fakeTransport) enableCalls() []enableCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enableCall(nil), f.calls...)
}

func (f *fakeTransport) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

// stallingTransport never finishes joining; Connect waits for its context.
type stallingTransport struct {
	entered chan struct{}
	once    sync.Once
}

func newStallingTransport() *stallingTransport {
	return &stallingTransport{entered: make(chan struct{})}
}

func (s *stallingTransport) Connect(ctx context.Context, _, _ string, _ core.ConnectOptions) error {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallingTransport) Disconnect() error { return nil }

func (s *stallingTransport) SetTrackEnabled(context.Context, domain.TrackSource, bool) error {
	return core.ErrNotConnected
}

func (s *stallingTransport) Subscribe(core.TransportEvents) func() { return func() {} }

type fakeTokens struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
}

func (f *fakeTokens) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeTokens) RequestCredential(context.Context, domain.Identity, domain.RoomName) (domain.Credential, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Credential{}, f.err
	}
	return domain.Credential{WSURL: "ws://rtc.test", Token: "tok"}, nil
}

func testConfig() Config {
	return Config{
		Identity:             "alice",
		Room:                 "style-consultation",
		ReconnectDelay:       30 * time.Millisecond,
		MaxReconnectAttempts: 3,
		EnableGrace:          10 * time.Millisecond,
		ConnectTimeout:       time.Second,
		Publish:              app.DefaultPublishOptions(),
	}
}

func startFacade(t *testing.T, cfg Config, tokens TokenSource, tr core.Transport) (*Orchestrator, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	o := New(cfg, tokens, tr)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		o.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return o, cancel, stopped
}

func phaseIs(o *Orchestrator, p domain.ConnectionPhase) func() bool {
	return func() bool { return o.Snapshot().Phase == p }
}

func localTrack(source domain.TrackSource) domain.TrackRef {
	return domain.TrackRef{
		TrackID:       "local-" + source.String(),
		ParticipantID: "alice",
		Origin:        domain.OriginLocal,
		Kind:          source.Kind(),
		Source:        source,
	}
}

func agentAudio() domain.TrackRef {
	return domain.TrackRef{
		TrackID:       "agent-audio",
		ParticipantID: "agent-1",
		Origin:        domain.OriginAgent,
		Kind:          domain.KindAudio,
		Source:        domain.SourceMicrophone,
	}
}

func TestInitialSnapshot(t *testing.T) {
	o := New(testConfig(), &fakeTokens{}, newFakeTransport())
	s := o.Snapshot()

	assert.Equal(t, domain.PhaseDisconnected, s.Phase)
	assert.Equal(t, CameraOffText, s.Video.Placeholder)
	assert.Equal(t, NoAgentText, s.Audio.Message)
	assert.False(t, s.Chat.Active)
	assert.Equal(t, "style-consultation", s.Settings.AgentID)
	assert.Equal(t, "alice", s.Settings.ParticipantID)
	assert.Equal(t, "DISCONNECTED", s.Settings.RoomState)
	assert.Equal(t, "FALSE", s.Settings.AgentConnected)
}

func TestGeneratedIdentity(t *testing.T) {
	cfg := testConfig()
	cfg.Identity = ""
	cfg.Room = ""
	o := New(cfg, &fakeTokens{}, newFakeTransport())

	assert.Contains(t, o.Snapshot().Settings.ParticipantID, "user-")
	assert.Equal(t, string(domain.DefaultRoom), o.Snapshot().Settings.AgentID)
}

func TestConnectEnablesInputsAndClassifiesTracks(t *testing.T) {
	tr := newFakeTransport()
	cfg := testConfig()
	cfg.Desired = domain.DesiredInputState{CameraEnabled: true, MicEnabled: true}
	o, _, _ := startFacade(t, cfg, &fakeTokens{}, tr)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)
	require.Eventually(t, func() bool { return len(tr.enableCalls()) == 2 }, waitFor, tick)
	assert.Equal(t, []enableCall{
		{source: domain.SourceMicrophone, enabled: true},
		{source: domain.SourceCamera, enabled: true},
	}, tr.enableCalls())

	tr.tracks(localTrack(domain.SourceCamera), localTrack(domain.SourceMicrophone))
	require.Eventually(t, func() bool { return o.Snapshot().Video.Track != nil }, waitFor, tick)

	s := o.Snapshot()
	assert.Equal(t, "local-camera", s.Video.Track.TrackID)
	assert.True(t, s.Settings.Camera)
	assert.True(t, s.Settings.Microphone)
	assert.Equal(t, WaitingForAgent, s.Audio.Message)
	assert.Nil(t, s.Audio.Track)
	assert.False(t, s.Chat.Active)
	assert.Equal(t, AgentStatePending, s.Settings.AgentConnected)
	assert.Equal(t, "CONNECTED", s.Settings.RoomState)
}

func TestAgentAudioActivatesChat(t *testing.T) {
	tr := newFakeTransport()
	o, _, _ := startFacade(t, testConfig(), &fakeTokens{}, tr)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)

	tr.tracks(agentAudio())
	tr.data(core.DataMessage{Topic: app.TranscriptionTopic, Payload: []byte(`{"text":"hello","timestamp":1000}`)})
	tr.data(core.DataMessage{Topic: app.TranscriptionTopic, Payload: []byte(`not json`)})
	tr.data(core.DataMessage{Topic: app.TranscriptionTopic, Payload: []byte(`{"text":"again"}`)})

	require.Eventually(t, func() bool { return len(o.Snapshot().Chat.Entries) == 2 }, waitFor, tick)
	s := o.Snapshot()
	assert.True(t, s.Chat.Active)
	assert.Equal(t, "TRUE", s.Settings.AgentConnected)
	require.NotNil(t, s.Audio.Track)
	assert.Equal(t, "agent-audio", s.Audio.Track.TrackID)
	assert.Equal(t, "hello", s.Chat.Entries[0].Text)
	assert.Equal(t, int64(1000), s.Chat.Entries[0].TimestampMs)
	assert.Equal(t, "again", s.Chat.Entries[1].Text)
}

func TestUnexpectedDisconnectReconnects(t *testing.T) {
	tr := newFakeTransport()
	tokens := &fakeTokens{}
	cfg := testConfig()
	cfg.ReconnectDelay = 100 * time.Millisecond
	o, _, _ := startFacade(t, cfg, tokens, tr)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)

	tr.phase(domain.PhaseDisconnected)
	require.Eventually(t, func() bool {
		s := o.Snapshot()
		return s.Phase == domain.PhaseReconnecting && s.Settings.Attempts == 1
	}, waitFor, tick)

	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)
	assert.Equal(t, 0, o.Snapshot().Settings.Attempts)
	assert.Equal(t, int32(2), tokens.calls.Load())
}

func TestExplicitDisconnectCancelsPendingReconnect(t *testing.T) {
	tr := newFakeTransport()
	tokens := &fakeTokens{}
	cfg := testConfig()
	cfg.ReconnectDelay = 50 * time.Millisecond
	o, _, _ := startFacade(t, cfg, tokens, tr)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)

	tr.phase(domain.PhaseDisconnected)
	o.Disconnect()

	require.Eventually(t, phaseIs(o, domain.PhaseDisconnected), waitFor, tick)
	require.Never(t, func() bool { return tokens.calls.Load() > 1 }, 200*time.Millisecond, tick)
	assert.Equal(t, 0, o.Snapshot().Settings.Attempts)
	assert.Equal(t, NoAgentText, o.Snapshot().Audio.Message)
}

func TestDisconnectDuringConnectAttempt(t *testing.T) {
	tr := newStallingTransport()
	tokens := &fakeTokens{}
	o, _, _ := startFacade(t, testConfig(), tokens, tr)

	o.Connect()
	select {
	case <-tr.entered:
	case <-time.After(waitFor):
		t.Fatal("transport connect not reached")
	}
	o.Disconnect()

	require.Eventually(t, phaseIs(o, domain.PhaseDisconnected), waitFor, tick)
	require.Never(t, func() bool { return o.Snapshot().Phase != domain.PhaseDisconnected }, 150*time.Millisecond, tick)

	s := o.Snapshot()
	assert.Equal(t, "DISCONNECTED", s.Settings.RoomState)
	assert.Equal(t, NoAgentText, s.Audio.Message)
	assert.Equal(t, 0, s.Settings.Attempts)
	assert.Empty(t, s.Settings.LastError)
	assert.Equal(t, int32(1), tokens.calls.Load())
}

func TestRetriesAreBounded(t *testing.T) {
	tokens := &fakeTokens{}
	tokens.fail(&core.TokenError{Reason: core.TokenNetworkFailure, Err: errors.New("refused")})
	cfg := testConfig()
	cfg.ReconnectDelay = 5 * time.Millisecond
	o, _, _ := startFacade(t, cfg, tokens, newFakeTransport())

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseFailed), waitFor, tick)
	require.Never(t, func() bool { return tokens.calls.Load() > 4 }, 100*time.Millisecond, tick)

	s := o.Snapshot()
	assert.Equal(t, int32(4), tokens.calls.Load())
	assert.Equal(t, 3, s.Settings.Attempts)
	assert.Contains(t, s.Settings.LastError, "after 3 attempts")
	assert.Equal(t, "FAILED", s.Settings.RoomState)

	// An explicit connect starts over.
	tokens.fail(nil)
	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)
	assert.Empty(t, o.Snapshot().Settings.LastError)
}

func TestConfigurationErrorIsNotRetried(t *testing.T) {
	tokens := &fakeTokens{}
	tokens.fail(&core.TokenError{Reason: core.TokenMissingConfig, Err: errors.New("no url")})
	o, _, _ := startFacade(t, testConfig(), tokens, newFakeTransport())

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseFailed), waitFor, tick)
	require.Never(t, func() bool { return tokens.calls.Load() > 1 }, 100*time.Millisecond, tick)
	assert.Contains(t, o.Snapshot().Settings.LastError, "missing_config")
}

func TestServerMissingConfigurationIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "configuration missing"})
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.ReconnectDelay = 5 * time.Millisecond
	tr := newFakeTransport()
	o, _, _ := startFacade(t, cfg, token.NewClient(srv.URL, "ws://rtc.test"), tr)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseFailed), waitFor, tick)
	require.Never(t, func() bool { return calls.Load() > 1 }, 100*time.Millisecond, tick)

	s := o.Snapshot()
	assert.Equal(t, "FAILED", s.Settings.RoomState)
	assert.Contains(t, s.Settings.LastError, "missing_config")
	assert.Contains(t, s.Settings.LastError, "configuration missing")
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Zero(t, tr.connects)
}

func TestDeviceFailureIsIsolated(t *testing.T) {
	tr := newFakeTransport()
	tr.enableErr[domain.SourceMicrophone] = &core.DeviceError{
		Source: domain.SourceMicrophone,
		Reason: core.DevicePermissionDenied,
		Err:    errors.New("denied"),
	}
	cfg := testConfig()
	cfg.Desired = domain.DesiredInputState{CameraEnabled: true, MicEnabled: true}
	o, _, _ := startFacade(t, cfg, &fakeTokens{}, tr)

	o.Connect()
	require.Eventually(t, func() bool { return o.Snapshot().Settings.MicError != "" }, waitFor, tick)

	s := o.Snapshot()
	assert.Equal(t, domain.PhaseConnected, s.Phase)
	assert.Empty(t, s.Settings.CameraError)
	assert.Contains(t, s.Settings.MicError, "permission_denied")
	assert.Contains(t, tr.enableCalls(), enableCall{source: domain.SourceCamera, enabled: true})
}

func TestDesiredStateChangeWhileConnected(t *testing.T) {
	tr := newFakeTransport()
	o, _, _ := startFacade(t, testConfig(), &fakeTokens{}, tr)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)
	require.Eventually(t, func() bool { return len(tr.enableCalls()) == 2 }, waitFor, tick)

	o.SetDesiredInputs(domain.DesiredInputState{CameraEnabled: true})
	require.Eventually(t, func() bool { return len(tr.enableCalls()) == 4 }, waitFor, tick)
	assert.Equal(t, enableCall{source: domain.SourceCamera, enabled: true}, tr.enableCalls()[3])
	assert.True(t, o.Snapshot().Desired.CameraEnabled)
}

func TestToggleInputUsesCurrentDesiredState(t *testing.T) {
	tr := newFakeTransport()
	o, _, _ := startFacade(t, testConfig(), &fakeTokens{}, tr)

	// Commands run in order, so once the mic flip shows both camera flips have run.
	o.ToggleInput(domain.SourceCamera)
	o.ToggleInput(domain.SourceCamera)
	o.ToggleInput(domain.SourceMicrophone)
	require.Eventually(t, func() bool { return o.Snapshot().Desired.MicEnabled }, waitFor, tick)
	assert.False(t, o.Snapshot().Desired.CameraEnabled)

	o.Connect()
	require.Eventually(t, phaseIs(o, domain.PhaseConnected), waitFor, tick)
	require.Eventually(t, func() bool { return len(tr.enableCalls()) == 2 }, waitFor, tick)

	o.ToggleInput(domain.SourceCamera)
	require.Eventually(t, func() bool { return len(tr.enableCalls()) == 4 }, waitFor, tick)
	assert.Contains(t, tr.enableCalls()[2:], enableCall{source: domain.SourceCamera, enabled: true})
	assert.Equal(t, domain.DesiredInputState{CameraEnabled: true, MicEnabled: true}, o.Snapshot().Desired)
}

func TestTeardownReleasesTransport(t *testing.T) {
	tr := newFakeTransport()
	cfg := testConfig()
	cfg.Desired = domain.DesiredInputState{CameraEnabled: true, MicEnabled: true}
	o, cancel, stopped := startFacade(t, cfg, &fakeTokens{}, tr)

	o.Connect()
	require.Eventually(t, func() bool { return len(tr.enableCalls()) == 2 }, waitFor, tick)

	cancel()
	<-stopped

	for range o.Updates() {
	}
	calls := tr.enableCalls()
	assert.Contains(t, calls, enableCall{source: domain.SourceCamera, enabled: false})
	assert.Contains(t, calls, enableCall{source: domain.SourceMicrophone, enabled: false})
	assert.GreaterOrEqual(t, tr.disconnectCount(), 1)

	// Callbacks after teardown reach nobody.
	tr.phase(domain.PhaseDisconnected)
	o.Connect()
}
