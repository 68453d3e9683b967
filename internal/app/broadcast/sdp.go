package broadcast

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/pion/sdp/v3"
)

type mediaLeg struct {
	kind   string
	port   int
	params *mediasoup.RtpParameters
}

// buildSDP renders the minimal session description the encoder reads
// from stdin: one media section per allocated loopback transport.
func buildSDP(legs []mediaLeg) ([]byte, error) {
	if len(legs) == 0 {
		return nil, errors.New("no media legs")
	}

	now := uint64(time.Now().Unix())
	doc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      now,
			SessionVersion: now,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: bridgeListenIP,
		},
		SessionName: "HuddleBroadcast",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: bridgeListenIP},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}

	for _, leg := range legs {
		if leg.params == nil || len(leg.params.Codecs) == 0 {
			return nil, fmt.Errorf("no codec parameters for %s leg", leg.kind)
		}
		codec := leg.params.Codecs[0]
		name := codec.MimeType
		if i := strings.IndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
		rtpmap := fmt.Sprintf("%d %s/%d", codec.PayloadType, name, codec.ClockRate)
		if codec.Channels > 1 {
			rtpmap = fmt.Sprintf("%s/%d", rtpmap, codec.Channels)
		}

		doc.MediaDescriptions = append(doc.MediaDescriptions, &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   leg.kind,
				Port:    sdp.RangedPort{Value: leg.port},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{strconv.Itoa(int(codec.PayloadType))},
			},
			Attributes: []sdp.Attribute{
				{Key: "rtpmap", Value: rtpmap},
			},
		})
	}

	return doc.Marshal()
}
