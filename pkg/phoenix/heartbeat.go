package phoenix

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/DeBrosOfficial/seastream/pkg/logging"
	"go.uber.org/zap"
)

// heartbeatDriver emits keep-alive frames on a fixed interval and watches
// for silent connection death. When no inbound traffic at all has been seen
// for timeoutFactor intervals it closes the session; the coordinator
// observes the closed inbound stream and reconnects. This is the only
// mechanism that detects a dead connection the transport does not report.
type heartbeatDriver struct {
	session       Session
	clock         clock.Clock
	interval      time.Duration
	timeoutFactor int
	nextRef       func() string
	logger        *logging.ColoredLogger

	lastRecv atomic.Int64 // unix nanos of the most recent inbound frame
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newHeartbeatDriver(session Session, clk clock.Clock, interval time.Duration, timeoutFactor int, nextRef func() string, logger *logging.ColoredLogger) *heartbeatDriver {
	h := &heartbeatDriver{
		session:       session,
		clock:         clk,
		interval:      interval,
		timeoutFactor: timeoutFactor,
		nextRef:       nextRef,
		logger:        logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	h.lastRecv.Store(clk.Now().UnixNano())
	return h
}

// touch records inbound traffic. Any frame counts, not just heartbeat acks.
func (h *heartbeatDriver) touch(now time.Time) {
	h.lastRecv.Store(now.UnixNano())
}

func (h *heartbeatDriver) run() {
	defer close(h.done)

	ticker := h.clock.Ticker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			silence := h.clock.Now().Sub(time.Unix(0, h.lastRecv.Load()))
			if silence > time.Duration(h.timeoutFactor)*h.interval {
				h.logger.ComponentWarn(logging.ComponentHeartbeat, "no traffic within heartbeat timeout, closing session",
					zap.Duration("silence", silence),
					zap.Duration("interval", h.interval))
				_ = h.session.Close()
				return
			}
			if err := h.session.Send(heartbeatMessage(h.nextRef())); err != nil {
				h.logger.ComponentWarn(logging.ComponentHeartbeat, "heartbeat send failed, closing session",
					zap.Error(err))
				_ = h.session.Close()
				return
			}
			h.logger.ComponentDebug(logging.ComponentHeartbeat, "heartbeat sent")
		}
	}
}

// Stop terminates the driver and waits for its goroutine to exit.
func (h *heartbeatDriver) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}
