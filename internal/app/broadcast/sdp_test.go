package broadcast

import (
	"testing"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func audioParams() *mediasoup.RtpParameters {
	return &mediasoup.RtpParameters{
		Codecs: []*mediasoup.RtpCodecParameters{
			{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2},
		},
	}
}

func videoParams() *mediasoup.RtpParameters {
	return &mediasoup.RtpParameters{
		Codecs: []*mediasoup.RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000},
		},
	}
}

func TestBuildSDPBothLegs(t *testing.T) {
	doc, err := buildSDP([]mediaLeg{
		{kind: "audio", port: 20000, params: audioParams()},
		{kind: "video", port: 20002, params: videoParams()},
	})
	require.NoError(t, err)

	out := string(doc)
	assert.Contains(t, out, "m=audio 20000 RTP/AVP 100")
	assert.Contains(t, out, "a=rtpmap:100 opus/48000/2")
	assert.Contains(t, out, "m=video 20002 RTP/AVP 101")
	assert.Contains(t, out, "a=rtpmap:101 VP8/90000")
	assert.Contains(t, out, "c=IN IP4 127.0.0.1")
}

func TestBuildSDPAudioOnly(t *testing.T) {
	doc, err := buildSDP([]mediaLeg{{kind: "audio", port: 20000, params: audioParams()}})
	require.NoError(t, err)
	assert.Contains(t, string(doc), "m=audio 20000 RTP/AVP 100")
	assert.NotContains(t, string(doc), "m=video")
}

func TestBuildSDPRejectsEmpty(t *testing.T) {
	_, err := buildSDP(nil)
	assert.Error(t, err)
}

func TestBuildSDPRejectsMissingCodec(t *testing.T) {
	_, err := buildSDP([]mediaLeg{{kind: "audio", port: 20000, params: &mediasoup.RtpParameters{}}})
	assert.Error(t, err)
}
