package stats

import "github.com/relloyd/sunglass-etl/logger"

// MockStatsManager hands out watchers that are never dumped.
type MockStatsManager struct{}

func (s *MockStatsManager) StartDumping() {}

func (s *MockStatsManager) StopDumping() {}

func (s *MockStatsManager) AddStepWatcher(stepName string) *StepWatcher {
	return NewStepWatcher(logger.NewNullLogger(), stepName)
}

func (s *MockStatsManager) GetStats() []Stats {
	return nil
}

func NewMockStatsManager() *MockStatsManager {
	return &MockStatsManager{}
}
