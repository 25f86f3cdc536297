package scheduler

import "github.com/me/govm/pkg/model"

// runControl executes a directory-management instruction inline. Control
// instructions take no part in access arbitration.
func (s *Scheduler) runControl(m *model.InstructionMessage) error {
	p := m.Control
	if p == nil {
		return model.NewViolation(model.ViolationMalformedControl, "missing control payload")
	}

	switch p.Op {
	case model.ControlCreateObject:
		if _, err := s.dir.Create(p.Object, p.Replicas); err != nil {
			return err
		}
		s.logger.Info("object created", "object", p.Object, "replicas", p.Replicas, "tick", s.tick)
	case model.ControlDeleteObject:
		if err := s.dir.Delete(p.Object); err != nil {
			return err
		}
		s.logger.Info("object deleted", "object", p.Object, "tick", s.tick)
	default:
		return model.NewViolation(model.ViolationMalformedControl, "unknown control op %q", p.Op)
	}
	s.counters.ControlExecuted++
	return nil
}
