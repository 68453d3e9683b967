package broadcast

import (
	"io"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

// execCommand is swapped out in tests.
var execCommand = exec.Command

// Bridge holds the resources of one running broadcast: the dedicated
// plain transports, their consumers and the encoder subprocess.
type Bridge struct {
	hangoutID domain.HangoutID
	manager   *Manager

	audioTransport core.PlainTransport
	videoTransport core.PlainTransport
	consumers      []core.Consumer
	cmd            *exec.Cmd

	stopOnce sync.Once
	mu       sync.Mutex
	stopped  bool
}

// Close implements rooms.BridgeRef: the room is going away, take the
// bridge with it.
func (b *Bridge) Close() {
	b.manager.Stop(b.hangoutID)
}

func (b *Bridge) addTransport(kind string, t core.PlainTransport) {
	if kind == "audio" {
		b.audioTransport = t
	} else {
		b.videoTransport = t
	}
}

func (b *Bridge) addConsumer(c core.Consumer) {
	b.consumers = append(b.consumers, c)
}

// spawn starts the encoder, feeds it the session description on stdin
// and watches for exit. Arguments select a fast low-latency video
// profile and a standard audio profile, pushing to endpointURL.
func (b *Bridge) spawn(ffmpegBin string, doc []byte, hasAudio, hasVideo bool, endpointURL string) error {
	args := []string{
		"-loglevel", "warning",
		"-protocol_whitelist", "pipe,udp,rtp",
		"-f", "sdp",
		"-i", "pipe:0",
	}
	if hasVideo {
		args = append(args, "-map", "0:v:0", "-c:v", "libx264", "-preset", "veryfast", "-tune", "zerolatency")
	}
	if hasAudio {
		args = append(args, "-map", "0:a:0", "-c:a", "aac", "-b:a", "128k", "-ar", "44100")
	}
	args = append(args, "-f", "flv", endpointURL)

	cmd := execCommand(ffmpegBin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	b.cmd = cmd

	go func() {
		if _, err := stdin.Write(doc); err != nil && err != io.ErrClosedPipe {
			log.Warn().Err(err).Str("module", "broadcast").Msg("sdp write")
		}
		_ = stdin.Close()
	}()

	go b.wait()
	return nil
}

func (b *Bridge) wait() {
	err := b.cmd.Wait()
	b.mu.Lock()
	stopped := b.stopped
	b.mu.Unlock()
	if stopped {
		// Stop() signaled the process; this exit is ours.
		return
	}
	b.manager.onExit(b.hangoutID, err)
}

// stop releases everything best-effort: every step runs even when an
// earlier one fails, and already-closed errors are swallowed.
func (b *Bridge) stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()

		if b.cmd != nil && b.cmd.Process != nil {
			if err := b.cmd.Process.Signal(syscall.SIGTERM); err != nil {
				log.Debug().Err(err).Str("module", "broadcast").Msg("encoder signal")
			}
		}
		for _, consumer := range b.consumers {
			if err := consumer.Close(); err != nil {
				log.Debug().Err(err).Str("module", "broadcast").Str("consumer", consumer.ID()).Msg("consumer close")
			}
		}
		if b.audioTransport != nil {
			if err := b.audioTransport.Close(); err != nil {
				log.Debug().Err(err).Str("module", "broadcast").Msg("audio transport close")
			}
		}
		if b.videoTransport != nil {
			if err := b.videoTransport.Close(); err != nil {
				log.Debug().Err(err).Str("module", "broadcast").Msg("video transport close")
			}
		}
	})
}
