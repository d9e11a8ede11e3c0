package coro

import (
	"context"
	"errors"
	"time"
)

// Start launches the tick loop in a background goroutine and returns
// immediately. The loop runs until ctx is cancelled or Stop is called.
func (s *Scheduler[T]) Start(ctx context.Context) error {
	stopCh, doneCh, err := s.claimLoop()
	if err != nil {
		return err
	}
	go func() {
		if err := s.loop(ctx, stopCh, doneCh); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler loop exited", "error", err)
		}
	}()
	return nil
}

// Run runs the tick loop on the calling goroutine. Blocks until ctx is
// cancelled or Stop is called.
func (s *Scheduler[T]) Run(ctx context.Context) error {
	stopCh, doneCh, err := s.claimLoop()
	if err != nil {
		return err
	}
	return s.loop(ctx, stopCh, doneCh)
}

func (s *Scheduler[T]) claimLoop() (chan struct{}, chan struct{}, error) {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()

	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	switch {
	case stopped:
		return nil, nil, ErrStopped
	case s.stopCh != nil:
		return nil, nil, ErrAlreadyStarted
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	return s.stopCh, s.doneCh, nil
}

func (s *Scheduler[T]) loop(ctx context.Context, stopCh, doneCh chan struct{}) error {
	defer close(doneCh)

	s.logger.Info("scheduler started",
		"tick_length", s.opts.tickLength,
		"sample_interval", s.opts.sampleInterval,
		"kill_on_success", s.opts.killOnSuccess,
	)
	ticker := time.NewTicker(s.opts.sampleInterval)
	defer ticker.Stop()

	s.prev = s.opts.now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-stopCh:
			s.logger.Info("scheduler stopping (stop called)")
			return nil
		case <-ticker.C:
			now := s.opts.now()
			elapsed := now.Sub(s.prev)
			s.prev = now
			if s.ticksPaused.Load() {
				continue
			}
			s.advanceClock(elapsed)
		}
	}
}

// advanceClock feeds elapsed wall-clock time into the accumulator and fires
// at most one tick. It reports whether a tick fired.
func (s *Scheduler[T]) advanceClock(elapsed time.Duration) bool {
	s.accumulator += Seconds[T](elapsed)
	if s.accumulator > s.tickLength {
		s.accumulator -= s.tickLength
		s.Tick()
		return true
	}
	return false
}

// PauseTicks suspends the loop without stopping it. Wall-clock time that
// passes while paused is discarded.
func (s *Scheduler[T]) PauseTicks() {
	s.ticksPaused.Store(true)
}

// ResumeTicks undoes PauseTicks.
func (s *Scheduler[T]) ResumeTicks() {
	s.ticksPaused.Store(false)
}

// TicksPaused reports whether PauseTicks is in effect.
func (s *Scheduler[T]) TicksPaused() bool {
	return s.ticksPaused.Load()
}

// Stop flags every live task killed, stops the loop and waits for it to
// exit, then purges the live set. A stopped scheduler accepts no new
// tasks. Stop must not be called from inside a sequence.
func (s *Scheduler[T]) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, t := range s.tasks {
		t.kill = true
	}
	s.mu.Unlock()

	s.loopMu.Lock()
	stopCh, doneCh := s.stopCh, s.doneCh
	s.loopMu.Unlock()
	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	s.tickMu.Lock()
	s.sweep()
	s.accumulator = 0
	s.prev = time.Time{}
	s.tickMu.Unlock()

	s.logger.Info("scheduler stopped", "ticks", s.stats.ticks.Load())
	return nil
}
