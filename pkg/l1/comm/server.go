package comm

import (
	"context"

	"github.com/golang/glog"

	fx "github.com/robotalks/arduinode/pkg/framework"
	l0 "github.com/robotalks/arduinode/pkg/l0/comm"
	"github.com/robotalks/arduinode/pkg/l1/msgs"
)

// Server executes CommandRequests received from a pipe through a
// CommandQueue and sends back CommandReplies.
type Server struct {
	Queue *CommandQueue

	pipe Pipe
}

// NewServer creates a Server.
func NewServer(rw PacketReadWriter, queue *CommandQueue) *Server {
	s := &Server{Queue: queue}
	s.pipe.ReadWriter = rw
	s.pipe.Handler = msgs.HandleTypedMsgFunc(s.handleTypedMsg)
	return s
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	return s.pipe.Run(ctx)
}

func (s *Server) handleTypedMsg(ctx context.Context, msg fx.Message, typed *msgs.Typed) error {
	req, ok := msg.(*msgs.CommandRequest)
	if !ok {
		glog.V(2).Infof("ignored message %x", typed.TypeID)
		return nil
	}
	glog.V(2).Infof("request %s %q", req.ID, req.Command)
	err := s.Queue.Enqueue(ctx, req.Command, func(reply *l0.Reply, err error) {
		s.reply(req.ID, reply, err)
	})
	if err != nil {
		s.reply(req.ID, nil, err)
	}
	return nil
}

func (s *Server) reply(id string, reply *l0.Reply, err error) {
	if err != nil {
		glog.V(2).Infof("request %s failed: %v", id, err)
	}
	if sendErr := s.pipe.Send(msgs.NewCommandReply(id, reply, err)); sendErr != nil {
		glog.Errorf("reply %s: %v", id, sendErr)
	}
}
