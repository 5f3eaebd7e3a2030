package webrtc

import (
	"fmt"
	"strings"
)

// CapVideoBitrate inserts b=AS/b=TIAS lines into every video media section
// of the SDP, capping the sender bitrate. Existing bandwidth lines in video
// sections are replaced. Non-video sections pass through untouched.
func CapVideoBitrate(sdp string, kbps int) string {
	lines := strings.Split(sdp, "\r\n")
	out := make([]string, 0, len(lines)+4)

	inVideo := false
	pendingInsert := false
	for _, line := range lines {
		if strings.HasPrefix(line, "m=") {
			if pendingInsert {
				// Video section had no c= line; insert before leaving it.
				out = appendBandwidth(out, kbps)
			}
			inVideo = strings.HasPrefix(line, "m=video")
			pendingInsert = inVideo
			out = append(out, line)
			continue
		}

		if inVideo && strings.HasPrefix(line, "b=") {
			continue // replaced by our cap
		}

		out = append(out, line)

		// b= belongs after the connection line within the section.
		if pendingInsert && strings.HasPrefix(line, "c=") {
			out = appendBandwidth(out, kbps)
			pendingInsert = false
		}
	}
	if pendingInsert {
		out = appendBandwidth(out, kbps)
	}

	return strings.Join(out, "\r\n")
}

func appendBandwidth(lines []string, kbps int) []string {
	return append(lines,
		fmt.Sprintf("b=AS:%d", kbps),
		fmt.Sprintf("b=TIAS:%d", kbps*1000),
	)
}
