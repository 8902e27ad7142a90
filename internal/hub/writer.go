package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/strefethen/playback-hub-go/internal/playback"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// clientWriter owns the write side of one websocket. All writes happen on its run
// goroutine; Send only enqueues.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	logger      *zap.SugaredLogger
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, bufferSize int, logger *zap.SugaredLogger) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		logger:      logger,
		sendChannel: make(chan []byte, bufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// Send implements playback.Sink. It returns false when the queue is full or the
// writer has stopped.
func (cw *clientWriter) Send(n playback.Notification) bool {
	msg, err := encodeEvent(n.Target, n.Payload)
	if err != nil {
		cw.logger.Errorw("Failed to encode notification", "target", n.Target, "error", err)
		return false
	}
	return cw.enqueue(msg)
}

// sendFrame queues any outbound frame, such as a completion.
func (cw *clientWriter) sendFrame(frame any) bool {
	msg, err := json.Marshal(frame)
	if err != nil {
		cw.logger.Errorw("Failed to encode frame", "error", err)
		return false
	}
	return cw.enqueue(msg)
}

func (cw *clientWriter) enqueue(msg []byte) bool {
	select {
	case <-cw.doneChannel:
		return false
	default:
	}
	select {
	case cw.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	keepalive, _ := json.Marshal(pingFrame{Type: framePing})

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.closeConnection()
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.closeConnection()
				return
			}
			if err := cw.connection.WriteMessage(websocket.TextMessage, keepalive); err != nil {
				cw.closeConnection()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// closeConnection unblocks the reader after a failed write.
func (cw *clientWriter) closeConnection() {
	_ = cw.connection.Close()
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful stops the writer, then sends a close frame carrying reason.
func (cw *clientWriter) stopGraceful(code int, reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		// The run goroutine must exit before the close frame is written.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(code, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
