package server

import (
	"github.com/teranos/flowcanvas/editor"
)

// onEditorEvent queues an editor event for every client. Rubber-band cursor
// moves are throttled; the gesture's first and last events always go out.
func (s *Server) onEditorEvent(ev editor.Event) {
	if ev.Type == editor.EventGesture && ev.Gesture != nil {
		moving := ev.Gesture.Pending && s.gestureOpen
		s.gestureOpen = ev.Gesture.Pending
		if moving && s.cursorLimiter != nil && !s.cursorLimiter.Allow() {
			return
		}
	}
	s.queue(ev)
}

// queue hands msg to the hub without blocking the editor
func (s *Server) queue(msg interface{}) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		drops := s.broadcastDrops.Add(1)
		s.logger.Warnw("Broadcast queue full, dropping event", "total_drops", drops)
	}
}
