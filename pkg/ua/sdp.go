package ua

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// BuildOfferAnswer renders the canned audio session description (§6.2) as
// a typed sdp.SessionDescription, grounded on the offer-building pattern
// of this codebase's SDP layer, rather than hand-formatting the text.
func BuildOfferAnswer(user, localIP string, rtpPort int) ([]byte, error) {
	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       user,
			SessionID:      1234567890,
			SessionVersion: 1234567890,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: localIP,
		},
		SessionName: "VoIP Call",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: localIP},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: rtpPort},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{"0", "8"},
				},
				Attributes: []sdp.Attribute{
					sdp.NewAttribute("rtpmap", "0 PCMU/8000"),
					sdp.NewAttribute("rtpmap", "8 PCMA/8000"),
					sdp.NewAttribute("ptime", "20"),
					sdp.NewAttribute("maxptime", "40"),
				},
			},
		},
	}

	return sd.Marshal()
}

// ParseRemoteRTPTarget extracts the (host, port) the offered/answered SDP
// names for the audio media line, the minimum this user-agent needs to
// point its RTP session at its peer.
func ParseRemoteRTPTarget(body []byte) (host string, port int, err error) {
	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(body); err != nil {
		return "", 0, fmt.Errorf("parsing remote SDP: %w", err)
	}
	host = sd.ConnectionInformation.Address.Address
	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media == "audio" {
			if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
				host = md.ConnectionInformation.Address.Address
			}
			return host, md.MediaName.Port.Value, nil
		}
	}
	return "", 0, fmt.Errorf("no audio media line in SDP")
}
