package webrtc

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// DrainSenderRTCP reads RTCP from the sender until it closes, feeding
// receiver-report loss fractions to onReport. The read loop also keeps the
// interceptor pipeline serviced; it must run for every sender.
func DrainSenderRTCP(sender *webrtc.RTPSender, logger *zap.SugaredLogger, onReport func(fractionLost float64)) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return // sender closed
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			logger.Debugw("failed to unmarshal rtcp", "error", err)
			continue
		}

		for _, packet := range packets {
			report, ok := packet.(*rtcp.ReceiverReport)
			if !ok {
				continue
			}
			for _, reception := range report.Reports {
				if onReport != nil {
					onReport(float64(reception.FractionLost) / 256.0)
				}
			}
		}
	}
}
