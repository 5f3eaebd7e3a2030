package webrtc

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdpLines(parts ...string) string {
	return strings.Join(parts, "\r\n")
}

func TestCapVideoBitrate_InsertsAfterConnectionLine(t *testing.T) {
	sdp := sdpLines(
		"v=0",
		"o=- 0 0 IN IP4 127.0.0.1",
		"s=-",
		"t=0 0",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"a=sendonly",
		"",
	)

	got := CapVideoBitrate(sdp, 1200)
	lines := strings.Split(got, "\r\n")

	cIdx := -1
	for i, line := range lines {
		if line == "c=IN IP4 0.0.0.0" {
			cIdx = i
		}
	}
	require.GreaterOrEqual(t, cIdx, 0)
	assert.Equal(t, "b=AS:1200", lines[cIdx+1])
	assert.Equal(t, "b=TIAS:1200000", lines[cIdx+2])
}

func TestCapVideoBitrate_LeavesAudioSectionAlone(t *testing.T) {
	sdp := sdpLines(
		"v=0",
		"m=audio 9 UDP/TLS/RTP/SAVPF 111",
		"c=IN IP4 0.0.0.0",
		"a=sendonly",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"",
	)

	got := CapVideoBitrate(sdp, 1200)

	audioSection := got[:strings.Index(got, "m=video")]
	assert.NotContains(t, audioSection, "b=AS")
	assert.Contains(t, got, "b=AS:1200")
}

func TestCapVideoBitrate_ReplacesExistingBandwidth(t *testing.T) {
	sdp := sdpLines(
		"v=0",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"c=IN IP4 0.0.0.0",
		"b=AS:5000",
		"",
	)

	got := CapVideoBitrate(sdp, 1200)

	assert.NotContains(t, got, "b=AS:5000")
	assert.Equal(t, 1, strings.Count(got, "b=AS:"))
	assert.Contains(t, got, "b=AS:1200")
}

func TestCapVideoBitrate_VideoSectionWithoutConnectionLine(t *testing.T) {
	sdp := sdpLines(
		"v=0",
		"m=video 9 UDP/TLS/RTP/SAVPF 96",
		"a=sendonly",
		"",
	)

	got := CapVideoBitrate(sdp, 800)
	assert.Contains(t, got, "b=AS:800")
	assert.Contains(t, got, "b=TIAS:800000")
}

func TestPreferCodec_MovesH264First(t *testing.T) {
	codecs := []webrtc.RTPCodecParameters{
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}},
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}},
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9}},
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}},
	}

	got := PreferCodec(codecs, webrtc.MimeTypeH264)
	require.Len(t, got, 4)
	assert.Equal(t, webrtc.MimeTypeH264, got[0].MimeType)
	assert.Equal(t, webrtc.MimeTypeH264, got[1].MimeType)
	assert.Equal(t, webrtc.MimeTypeVP8, got[2].MimeType)
}

func TestPreferCodec_AbsentCodecReturnsNil(t *testing.T) {
	codecs := []webrtc.RTPCodecParameters{
		{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}},
	}
	assert.Nil(t, PreferCodec(codecs, webrtc.MimeTypeH264))
}
