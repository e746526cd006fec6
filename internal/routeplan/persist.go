package routeplan

import (
	"route-api/internal/logger"
	"route-api/internal/metrics"
	"route-api/internal/model"
)

func (s *Store) loadAdjustments() {
	b, ok, err := s.kv.Load(s.ctx, model.AdjustmentsKey)
	if err != nil {
		metrics.KVErrorsTotal.WithLabelValues("load").Inc()
		logger.Component("routeplan").Warn("adjustments_load_error", "err", err)
		return
	}
	if !ok {
		return
	}
	m, err := model.DecodeAdjustments(b)
	if err != nil {
		logger.Component("routeplan").Warn("adjustments_decode_error", "err", err)
	}
	s.adjustments = m
	logger.Component("routeplan").Debug("adjustments_loaded", "entries", len(m))
}

func (s *Store) loadCompleted() {
	b, ok, err := s.kv.Load(s.ctx, model.CompletedKey)
	if err != nil {
		metrics.KVErrorsTotal.WithLabelValues("load").Inc()
		logger.Component("routeplan").Warn("completed_load_error", "err", err)
		return
	}
	if !ok {
		return
	}
	set, err := model.DecodeKeySet(b)
	if err != nil {
		logger.Component("routeplan").Warn("completed_decode_error", "err", err)
		set = map[string]struct{}{}
	}
	s.completed = set
}

// saveAdjustmentsLocked：调用方持有 s.mu
func (s *Store) saveAdjustmentsLocked() {
	b, err := model.EncodeAdjustments(s.adjustments)
	if err == nil {
		err = s.kv.Save(s.ctx, model.AdjustmentsKey, b)
	}
	if err != nil {
		metrics.KVErrorsTotal.WithLabelValues("save").Inc()
		logger.Component("routeplan").Warn("adjustments_save_error", "err", err)
	}
}

func (s *Store) saveCompletedLocked() {
	b, err := model.EncodeKeySet(s.completed)
	if err == nil {
		err = s.kv.Save(s.ctx, model.CompletedKey, b)
	}
	if err != nil {
		metrics.KVErrorsTotal.WithLabelValues("save").Inc()
		logger.Component("routeplan").Warn("completed_save_error", "err", err)
	}
}
