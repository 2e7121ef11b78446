package webrtc

import (
	"sync/atomic"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// StatsInterceptor counts RTP packets and bytes in both directions
// over every peer made by one factory.
type StatsInterceptor struct {
	interceptor.NoOp
	sentPackets uint64
	sentBytes   uint64
	recvPackets uint64
	recvBytes   uint64
}

func (i *StatsInterceptor) NewInterceptor(_ string) (interceptor.Interceptor, error) { return i, nil }

// BindLocalStream counts all outgoing RTP packets.
func (i *StatsInterceptor) BindLocalStream(_ *interceptor.StreamInfo, writer interceptor.RTPWriter) interceptor.RTPWriter {
	return interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, attributes interceptor.Attributes) (int, error) {
		n, err := writer.Write(header, payload, attributes)
		if err == nil {
			atomic.AddUint64(&i.sentPackets, 1)
			atomic.AddUint64(&i.sentBytes, uint64(n))
		}
		return n, err
	})
}

// BindRemoteStream counts all incoming RTP packets.
func (i *StatsInterceptor) BindRemoteStream(_ *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attributes, err := reader.Read(b, a)
		if err == nil {
			atomic.AddUint64(&i.recvPackets, 1)
			atomic.AddUint64(&i.recvBytes, uint64(n))
		}
		return n, attributes, err
	})
}

func (i *StatsInterceptor) Sent() (packets uint64, bytes uint64) {
	return atomic.LoadUint64(&i.sentPackets), atomic.LoadUint64(&i.sentBytes)
}

func (i *StatsInterceptor) Received() (packets uint64, bytes uint64) {
	return atomic.LoadUint64(&i.recvPackets), atomic.LoadUint64(&i.recvBytes)
}
