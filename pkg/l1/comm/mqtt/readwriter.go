package mqtt

import (
	"context"
	"io"
	"sync"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue     *Queue
	SubTopics []string
	PubTopic  string

	packetCh  chan []byte
	closeCh   chan struct{}
	subs      []*Subscription
	subOnce   sync.Once
	closeOnce sync.Once
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		closeCh:  make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(pub string, subs ...string) *ReadWriter {
	p.PubTopic, p.SubTopics = pub, subs
	return p
}

// ForRemote sets topics using default convention for remote clients:
// SubTopics = id/reply, id/event/+
// PubTopic = id/cmd
func (p *ReadWriter) ForRemote(id string) *ReadWriter {
	return p.WithTopics(DeviceTopic(id, TopicCmd), DeviceTopic(id, TopicReply), EventTopic(id, "+"))
}

// ForBridge sets topics using default convention for the device bridge:
// SubTopics = id/cmd
// PubTopic = id/reply
func (p *ReadWriter) ForBridge(id string) *ReadWriter {
	return p.WithTopics(DeviceTopic(id, TopicReply), DeviceTopic(id, TopicCmd))
}

// Subscribe subscribes SubTopics. It's called by Run if not called before.
func (p *ReadWriter) Subscribe() {
	p.subOnce.Do(func() {
		for _, topic := range p.SubTopics {
			p.subs = append(p.subs, p.Queue.Subscribe(topic, p.handleMsg))
		}
	})
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.closeCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	return p.Queue.Publish(p.PubTopic, pkt, false)
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	p.Subscribe()
	defer p.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closeCh:
		return nil
	}
}

// Close implements io.Closer.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() {
		close(p.closeCh)
		for _, sub := range p.subs {
			sub.Close()
		}
	})
	return nil
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.closeCh:
	}
}
