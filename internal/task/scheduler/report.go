package scheduler

import (
	"golang.org/x/time/rate"

	logx "offsetcron/pkg/logx"
)

// reportFailure logs a callback failure. Each job warns at most once per
// cfg.FailureWarnEvery; failures in between go to debug so a job failing on
// a short interval cannot flood the log.
func (s *Service) reportFailure(j *Job, err error) {
	if err == nil {
		return
	}
	s.warnMu.Lock()
	lim := s.warn[j.id]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(s.cfg.FailureWarnEvery), 1)
		s.warn[j.id] = lim
	}
	allow := lim.AllowN(s.clock.Now(), 1)
	s.warnMu.Unlock()

	if !allow {
		s.log.Debug("job failed", logx.String("job", j.label()), logx.Err(err))
		return
	}
	s.log.Warn("job failed", logx.String("job", j.label()), logx.Err(err))
}

// Apply swaps the tunables at runtime. Failure throttles restart from scratch.
func (s *Service) Apply(cfg Config) {
	if cfg.FailureWarnEvery <= 0 {
		cfg.FailureWarnEvery = defaultFailureWarnEvery
	}
	s.warnMu.Lock()
	s.cfg = cfg
	clear(s.warn)
	s.warnMu.Unlock()
}

func (s *Service) config() Config {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	return s.cfg
}

func (s *Service) forgetFailures(ids ...string) {
	s.warnMu.Lock()
	for _, id := range ids {
		delete(s.warn, id)
	}
	s.warnMu.Unlock()
}
