/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	mockDefaultSampleRate = 48000
	mockFramesPerBurst    = 192
	mockDefaultDeviceID   = 1
)

// Negotiator lets tests replace the mock's negotiation. It receives the
// request and the mock's default result and returns the configuration the
// stream reports, or an error to reject the open.
type Negotiator func(requested, negotiated StreamConfig) (StreamConfig, error)

// MockPlatform implements Platform for testing without hardware dependencies
type MockPlatform struct {
	mu                 sync.Mutex
	aaudioSupported    bool
	aaudioRecommended  bool
	openError          error
	leakOnError        bool
	negotiator         Negotiator
	simulateCallbacks  bool
	simulateRealTiming bool
	callbackInterval   time.Duration
	streams            map[string]*MockStream
	streamCounter      int
	openAttempts       int
	nextSessionID      SessionID
	recordedAudioData  [][]byte
	playbackAudioData  [][]byte
}

// NewMockPlatform creates a mock platform on which AAudio is supported and
// recommended and every request is accepted.
func NewMockPlatform() *MockPlatform {
	return &MockPlatform{
		aaudioSupported:   true,
		aaudioRecommended: true,
		simulateCallbacks: true,
		callbackInterval:  time.Millisecond,
		streams:           make(map[string]*MockStream),
		nextSessionID:     1,
		recordedAudioData: make([][]byte, 0),
		playbackAudioData: make([][]byte, 0),
	}
}

// SetAAudioSupported configures the AAudio support probe
func (m *MockPlatform) SetAAudioSupported(supported bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aaudioSupported = supported
}

// SetAAudioRecommended configures the AAudio recommendation probe
func (m *MockPlatform) SetAAudioRecommended(recommended bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aaudioRecommended = recommended
}

// SetOpenError configures the platform to reject every open with err
func (m *MockPlatform) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openError = err
}

// SetLeakOnError makes a rejected open also return a half-built stream, as
// some native drivers do
func (m *MockPlatform) SetLeakOnError(leak bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leakOnError = leak
}

// SetNegotiator replaces the default negotiation
func (m *MockPlatform) SetNegotiator(n Negotiator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.negotiator = n
}

// SetSimulateCallbacks controls whether started callback streams are driven
// by a background goroutine
func (m *MockPlatform) SetSimulateCallbacks(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateCallbacks = simulate
}

// SetSimulateRealTiming controls whether blocking reads and writes take as
// long as the audio they carry
func (m *MockPlatform) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// SetCallbackInterval sets the period of simulated callback invocations
func (m *MockPlatform) SetCallbackInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbackInterval = d
}

func (m *MockPlatform) IsAAudioSupported() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aaudioSupported
}

func (m *MockPlatform) IsAAudioRecommended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aaudioRecommended
}

// OpenAttempts returns the number of OpenStream calls
func (m *MockPlatform) OpenAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openAttempts
}

// Streams returns the streams that have not been closed
func (m *MockPlatform) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*MockStream, 0, len(m.streams))
	for _, s := range m.streams {
		result = append(result, s)
	}
	return result
}

// GetRecordedAudioData returns all audio data that was "captured"
func (m *MockPlatform) GetRecordedAudioData() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.recordedAudioData))
	copy(result, m.recordedAudioData)
	return result
}

// GetPlaybackAudioData returns all audio data that was "played back"
func (m *MockPlatform) GetPlaybackAudioData() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([][]byte, len(m.playbackAudioData))
	copy(result, m.playbackAudioData)
	return result
}

// OpenStream negotiates cfg: unspecified fields get the mock's defaults,
// AAudio is chosen by SelectAudioAPI, and OpenSL ES ignores the device id
// and exclusive mode.
func (m *MockPlatform) OpenStream(cfg StreamConfig) (NativeStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openAttempts++

	if m.openError != nil {
		if m.leakOnError {
			return m.addStreamLocked(cfg), m.openError
		}
		return nil, m.openError
	}

	negotiated := m.negotiateLocked(cfg)
	if m.negotiator != nil {
		var err error
		negotiated, err = m.negotiator(cfg.WithoutCallback(), negotiated.WithoutCallback())
		if err != nil {
			return nil, err
		}
		negotiated.callback = cfg.callback
	}

	return m.addStreamLocked(negotiated), nil
}

func (m *MockPlatform) negotiateLocked(req StreamConfig) StreamConfig {
	n := req
	n.AudioAPI = SelectAudioAPI(req.AudioAPI, m.aaudioSupported, m.aaudioRecommended)

	if n.SampleRate == UnspecifiedValue {
		n.SampleRate = mockDefaultSampleRate
	}
	if n.ChannelCount == ChannelCountUnspecified {
		if n.Direction == DirectionInput {
			n.ChannelCount = ChannelCountMono
		} else {
			n.ChannelCount = ChannelCountStereo
		}
	}
	if n.Format == FormatUnspecified {
		n.Format = FormatFloat
	}
	if n.BufferCapacityInFrames == UnspecifiedValue {
		n.BufferCapacityInFrames = 4 * mockFramesPerBurst
	}
	if n.SessionID == SessionIDAllocate {
		n.SessionID = m.nextSessionID
		m.nextSessionID++
	}

	if n.AudioAPI == AudioAPIOpenSLES {
		n.DeviceID = UnspecifiedValue
		n.SharingMode = SharingModeShared
	} else if n.DeviceID == UnspecifiedValue {
		n.DeviceID = mockDefaultDeviceID
	}
	return n
}

func (m *MockPlatform) addStreamLocked(cfg StreamConfig) *MockStream {
	prefix := "output"
	if cfg.Direction == DirectionInput {
		prefix = "input"
	}
	streamID := fmt.Sprintf("%s_%d", prefix, m.streamCounter)
	m.streamCounter++

	interval := m.callbackInterval
	if m.simulateRealTiming && cfg.SampleRate > 0 {
		interval = time.Duration(float64(burstFrames(cfg)) / float64(cfg.SampleRate) * float64(time.Second))
	}

	stream := &MockStream{
		id:                 streamID,
		platform:           m,
		cfg:                cfg,
		state:              StreamStateOpen,
		simulateCallbacks:  m.simulateCallbacks,
		simulateRealTiming: m.simulateRealTiming,
		interval:           interval,
	}
	m.streams[streamID] = stream
	return stream
}

func (m *MockPlatform) removeStream(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.streams, id)
}

func (m *MockPlatform) record(data []byte, input bool) {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if input {
		m.recordedAudioData = append(m.recordedAudioData, dataCopy)
	} else {
		m.playbackAudioData = append(m.playbackAudioData, dataCopy)
	}
}

func burstFrames(cfg StreamConfig) int32 {
	if cfg.FramesPerCallback > 0 {
		return cfg.FramesPerCallback
	}
	return mockFramesPerBurst
}

// MockStream implements NativeStream for testing
type MockStream struct {
	mu                 sync.Mutex
	id                 string
	platform           *MockPlatform
	cfg                StreamConfig
	state              StreamState
	simulateCallbacks  bool
	simulateRealTiming bool
	interval           time.Duration
	stopChannel        chan struct{}
	done               chan struct{}
	phase              float64
	invocations        int
	startError         error
	closeError         error
	audioDataGenerator func([]byte)
}

// ID returns the mock's stream identifier
func (m *MockStream) ID() string {
	return m.id
}

// SetStartError configures the stream to return an error on RequestStart()
func (m *MockStream) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startError = err
}

// SetCloseError configures the stream to return an error on Close()
func (m *MockStream) SetCloseError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeError = err
}

// SetAudioDataGenerator sets a function to generate mock captured data in
// the negotiated format
func (m *MockStream) SetAudioDataGenerator(generator func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioDataGenerator = generator
}

// Invocations returns how many times the platform invoked the data callback
func (m *MockStream) Invocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invocations
}

func (m *MockStream) Config() StreamConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.WithoutCallback()
}

func (m *MockStream) State() StreamState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RequestStart starts the stream and, for callback streams, the simulated
// audio thread
func (m *MockStream) RequestStart() error {
	m.mu.Lock()
	if m.startError != nil {
		m.mu.Unlock()
		return m.startError
	}
	switch m.state {
	case StreamStateClosed, StreamStateClosing:
		m.mu.Unlock()
		return StatusErrorClosed
	case StreamStateDisconnected:
		m.mu.Unlock()
		return StatusErrorDisconnected
	case StreamStateStarted:
		m.mu.Unlock()
		return nil
	}
	done := m.haltLocked()
	m.mu.Unlock()
	if done != nil {
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StreamStateStarted
	if m.cfg.callback != nil && m.simulateCallbacks {
		m.stopChannel = make(chan struct{})
		m.done = make(chan struct{})
		go m.simulateAudioThread(m.stopChannel, m.done)
	}
	return nil
}

// RequestStop stops the stream and waits for the simulated audio thread
func (m *MockStream) RequestStop() error {
	m.mu.Lock()
	switch m.state {
	case StreamStateClosed, StreamStateClosing:
		m.mu.Unlock()
		return StatusErrorClosed
	case StreamStateStarted, StreamStateStarting:
		m.state = StreamStateStopping
	}
	done := m.haltLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StreamStateStopping {
		m.state = StreamStateStopped
	}
	return nil
}

// Close stops the simulated audio thread and releases the stream. The
// callback reference is kept so tests can misbehave with InvokeCallback.
func (m *MockStream) Close() error {
	m.mu.Lock()
	if m.closeError != nil {
		m.mu.Unlock()
		return m.closeError
	}
	if m.state == StreamStateClosed {
		m.mu.Unlock()
		return nil // Already closed
	}
	m.state = StreamStateClosing
	done := m.haltLocked()
	m.mu.Unlock()

	if done != nil {
		<-done
	}

	m.mu.Lock()
	m.state = StreamStateClosed
	m.mu.Unlock()

	m.platform.removeStream(m.id)
	return nil
}

// haltLocked signals the audio thread to exit and returns the channel that
// closes once it has. The caller must wait without holding m.mu.
func (m *MockStream) haltLocked() chan struct{} {
	if m.stopChannel == nil {
		return nil
	}
	close(m.stopChannel)
	done := m.done
	m.stopChannel, m.done = nil, nil
	return done
}

// InvokeCallback calls the bound data callback once, whatever the stream
// state. It models a platform delivering a late invocation.
func (m *MockStream) InvokeCallback(numFrames int32) DataCallbackResult {
	m.mu.Lock()
	cb := m.cfg.callback
	buf := make([]byte, int(numFrames)*m.cfg.BytesPerFrame())
	if m.cfg.Direction == DirectionInput {
		m.fillInputLocked(buf)
	}
	m.invocations++
	m.mu.Unlock()

	if cb == nil {
		return DataCallbackResultStop
	}
	return cb.OnAudioReady(m, buf, numFrames)
}

// Disconnect simulates the device going away: the error callbacks run and
// the stream ends up disconnected.
func (m *MockStream) Disconnect() {
	m.mu.Lock()
	cb := m.cfg.callback
	done := m.haltLocked()
	m.mu.Unlock()
	if done != nil {
		<-done
	}

	if cb != nil {
		cb.OnErrorBeforeClose(m, StatusErrorDisconnected)
	}
	m.mu.Lock()
	m.state = StreamStateDisconnected
	m.mu.Unlock()
	if cb != nil {
		cb.OnErrorAfterClose(m, StatusErrorDisconnected)
	}
}

// Read fills buf with numFrames generated frames from a started input stream
func (m *MockStream) Read(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	m.mu.Lock()
	if err := m.checkIOLocked(DirectionInput, buf, numFrames); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	if m.state != StreamStateStarted {
		m.mu.Unlock()
		return 0, StatusErrorInvalidState
	}
	data := buf[:int(numFrames)*m.cfg.BytesPerFrame()]
	m.fillInputLocked(data)
	realTiming := m.simulateRealTiming
	rate := m.cfg.SampleRate
	m.mu.Unlock()

	m.platform.record(data, true)
	if realTiming {
		sleepFrames(numFrames, rate, timeout)
	}
	return numFrames, nil
}

// Write records numFrames frames written to an output stream
func (m *MockStream) Write(buf []byte, numFrames int32, timeout time.Duration) (int32, error) {
	m.mu.Lock()
	if err := m.checkIOLocked(DirectionOutput, buf, numFrames); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	data := buf[:int(numFrames)*m.cfg.BytesPerFrame()]
	realTiming := m.simulateRealTiming
	rate := m.cfg.SampleRate
	m.mu.Unlock()

	m.platform.record(data, false)
	if realTiming {
		sleepFrames(numFrames, rate, timeout)
	}
	return numFrames, nil
}

func (m *MockStream) checkIOLocked(dir Direction, buf []byte, numFrames int32) error {
	switch {
	case m.state == StreamStateClosed || m.state == StreamStateClosing:
		return StatusErrorClosed
	case m.state == StreamStateDisconnected:
		return StatusErrorDisconnected
	case m.cfg.Direction != dir:
		return StatusErrorUnimplemented
	case m.cfg.callback != nil:
		return StatusErrorInvalidState
	case numFrames < 0 || len(buf) < int(numFrames)*m.cfg.BytesPerFrame():
		return StatusErrorIllegalArgument
	}
	return nil
}

func sleepFrames(numFrames, rate int32, timeout time.Duration) {
	if rate <= 0 {
		return
	}
	d := time.Duration(float64(numFrames) / float64(rate) * float64(time.Second))
	if timeout > 0 && d > timeout {
		d = timeout
	}
	time.Sleep(d)
}

// simulateAudioThread runs in background to drive the data callback the
// way a platform audio thread would
func (m *MockStream) simulateAudioThread(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.mu.Lock()
	frames := burstFrames(m.cfg)
	buffer := make([]byte, int(frames)*m.cfg.BytesPerFrame())
	cb := m.cfg.callback
	input := m.cfg.Direction == DirectionInput
	interval := m.interval
	m.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if input {
			m.fillInputLocked(buffer)
		} else {
			clear(buffer)
		}
		m.invocations++
		m.mu.Unlock()

		result := cb.OnAudioReady(m, buffer, frames)
		m.platform.record(buffer, input)

		if result == DataCallbackResultStop {
			m.mu.Lock()
			if m.state == StreamStateStarted {
				m.state = StreamStateStopped
			}
			m.mu.Unlock()
			return
		}
	}
}

// fillInputLocked generates captured frames: the configured generator or
// a 440 Hz sine wave in the negotiated format
func (m *MockStream) fillInputLocked(buf []byte) {
	if m.audioDataGenerator != nil {
		m.audioDataGenerator(buf)
		return
	}

	channels := int(m.cfg.ChannelCount)
	size := m.cfg.Format.BytesPerSample()
	if channels <= 0 || size == 0 {
		return
	}
	step := 2 * math.Pi * 440 / float64(m.cfg.SampleRate)
	for off := 0; off+channels*size <= len(buf); off += channels * size {
		v := 0.1 * math.Sin(m.phase)
		m.phase += step
		for ch := 0; ch < channels; ch++ {
			p := off + ch*size
			switch m.cfg.Format {
			case FormatI16:
				binary.LittleEndian.PutUint16(buf[p:], uint16(int16(v*math.MaxInt16)))
			case FormatFloat:
				binary.LittleEndian.PutUint32(buf[p:], math.Float32bits(float32(v)))
			default:
				clear(buf[p : p+size])
			}
		}
	}
}
