package model

import (
	"sync"
	"testing"
)

func TestStateManagerLifecycle(t *testing.T) {
	sm := NewStateManager()

	if sm.IsFitted() {
		t.Error("new StateManager must not report fitted")
	}
	if err := sm.RequireFitted(); err == nil {
		t.Error("RequireFitted must fail before SetFitted")
	}

	sm.SetDimensions(4, 100)
	sm.SetFitted()

	if !sm.IsFitted() {
		t.Error("expected fitted after SetFitted")
	}
	if err := sm.RequireFitted(); err != nil {
		t.Errorf("RequireFitted failed after SetFitted: %v", err)
	}
	nFeatures, nSamples := sm.GetDimensions()
	if nFeatures != 4 || nSamples != 100 {
		t.Errorf("GetDimensions = (%d, %d), want (4, 100)", nFeatures, nSamples)
	}

	sm.Reset()
	if sm.IsFitted() {
		t.Error("Reset must clear the fitted flag")
	}
	nFeatures, nSamples = sm.GetDimensions()
	if nFeatures != 0 || nSamples != 0 {
		t.Errorf("Reset must clear dimensions, got (%d, %d)", nFeatures, nSamples)
	}
}

func TestStateManagerConcurrentAccess(t *testing.T) {
	sm := NewStateManager()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sm.SetFitted()
			sm.SetDimensions(2, 10)
		}()
		go func() {
			defer wg.Done()
			_ = sm.IsFitted()
			_, _ = sm.GetDimensions()
		}()
	}
	wg.Wait()

	if !sm.IsFitted() {
		t.Error("expected fitted after concurrent writers finished")
	}
}
