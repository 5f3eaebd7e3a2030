package services

import (
	"context"
	"sync"
	"testing"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type stubControl struct {
	mu sync.Mutex

	grant       *domain.InputGrant
	registerErr error
	removeErr   error
	ackErr      error

	registerCalls int
	removedInputs []domain.InputID
	ackCalls      int
}

func (c *stubControl) RegisterInput(ctx context.Context, roomID domain.RoomID) (*domain.InputGrant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registerCalls++
	if c.registerErr != nil {
		return nil, c.registerErr
	}
	grant := *c.grant
	return &grant, nil
}

func (c *stubControl) RemoveInput(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removedInputs = append(c.removedInputs, inputID)
	return c.removeErr
}

func (c *stubControl) AckInput(ctx context.Context, roomID domain.RoomID, inputID domain.InputID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ackCalls++
	return c.ackErr
}

func (c *stubControl) removed() []domain.InputID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.InputID(nil), c.removedInputs...)
}

func (c *stubControl) acks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ackCalls
}

type stubIngest struct {
	mu sync.Mutex

	answerFor func(offerSDP string) string
	location  string
	offerErr  error
	deleteErr error

	sentSDP          string
	sentInput        domain.InputID
	deletedLocations []string
}

func (i *stubIngest) SendOffer(ctx context.Context, inputID domain.InputID, bearerToken, sdp string) (string, string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sentSDP = sdp
	i.sentInput = inputID
	if i.offerErr != nil {
		return "", "", i.offerErr
	}
	return i.answerFor(sdp), i.location, nil
}

func (i *stubIngest) DeleteResource(ctx context.Context, location, bearerToken string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deletedLocations = append(i.deletedLocations, location)
	return i.deleteErr
}

func (i *stubIngest) deleted() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.deletedLocations...)
}

func (i *stubIngest) lastSDP() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sentSDP
}

type stubSource struct {
	mu sync.Mutex

	openErr   error
	openCount int
	closed    int
}

func (s *stubSource) Open(ctx context.Context) (*ports.MediaTracks, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.openCount++
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video",
		"stub-video",
	)
	if err != nil {
		return nil, err
	}
	return &ports.MediaTracks{Video: track}, nil
}

func (s *stubSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type stubPublisher struct {
	mu sync.Mutex

	startErr   error
	startCalls int
	session    *domain.PublishSession
}

func (p *stubPublisher) Start(ctx context.Context, roomID domain.RoomID) (*domain.PublishSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	if p.startErr != nil {
		return nil, p.startErr
	}
	session := *p.session
	session.RoomID = roomID
	return &session, nil
}

func (p *stubPublisher) Stop(ctx context.Context) error { return nil }

func (p *stubPublisher) Status() ports.PublisherStatus { return ports.PublisherStatus{} }

func (p *stubPublisher) starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startCalls
}

// answerOffer negotiates a real answer for the offer so the flow under test
// can apply a remote description pion accepts.
func answerOffer(t *testing.T, offerSDP string) string {
	t.Helper()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer pc.Close()

	require.NoError(t, pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}))

	answer, err := pc.CreateAnswer(nil)
	require.NoError(t, err)

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(answer))
	<-gatherComplete

	return pc.LocalDescription().SDP
}
