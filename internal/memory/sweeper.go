package memory

import (
	"time"

	"github.com/robfig/cron/v3"

	logx "github.com/replyforge/server/pkg/logger"
)

// Sweeper periodically clears idle conversation windows. It is the external
// scheduled collaborator to WindowStore; the store itself never expires keys
// by time.
type Sweeper struct {
	store *WindowStore
	idle  time.Duration
	cron  *cron.Cron
}

func NewSweeper(store *WindowStore, spec string, idle time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		store: store,
		idle:  idle,
		cron:  cron.New(),
	}
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) sweep() {
	if n := s.store.SweepIdle(s.idle); n > 0 {
		logx.Info().Int("windows", n).Dur("idle", s.idle).Msg("swept idle conversation windows")
	}
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling; a sweep already in flight finishes.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}
