package app

import (
	"sort"
	"sync"
	"time"
)

// Stage is where an in-flight translation currently is.
type Stage string

const (
	StageChecking    Stage = "checking"
	StageFetching    Stage = "fetching"
	StageRequesting  Stage = "requesting"
	StageOverlaying  Stage = "overlaying"
	StageReplacing   Stage = "replacing"
	StageDownloading Stage = "downloading"
)

// Origin tells which flow registered a locator.
type Origin string

const (
	OriginAuto   Origin = "auto"
	OriginManual Origin = "manual"
	OriginBatch  Origin = "batch"
)

// InFlight describes one registered locator.
type InFlight struct {
	Locator string    `json:"locator"`
	Origin  Origin    `json:"origin"`
	Stage   Stage     `json:"stage"`
	Started time.Time `json:"started"`
}

// OrchestratorState is the process-lifetime registry of in-flight locators
// plus the batch guard. Duplicate requests are rejected, not queued.
type OrchestratorState struct {
	mu       sync.Mutex
	inflight map[string]*InFlight
	batching bool
	now      func() time.Time
}

// NewOrchestratorState creates an empty state.
func NewOrchestratorState() *OrchestratorState {
	return &OrchestratorState{
		inflight: make(map[string]*InFlight),
		now:      time.Now,
	}
}

// acquire registers locator. ok is false when it is already in flight.
// release must be called exactly once when ok is true.
func (s *OrchestratorState) acquire(locator string, origin Origin) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[locator]; busy {
		return nil, false
	}
	entry := &InFlight{Locator: locator, Origin: origin, Stage: StageChecking, Started: s.now()}
	s.inflight[locator] = entry

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.inflight[locator] == entry {
				delete(s.inflight, locator)
			}
		})
	}, true
}

func (s *OrchestratorState) setStage(locator string, stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.inflight[locator]; ok {
		e.Stage = stage
	}
}

// IsInFlight reports whether locator is registered.
func (s *OrchestratorState) IsInFlight(locator string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[locator]
	return ok
}

// InFlight returns a snapshot ordered by start time.
func (s *OrchestratorState) InFlight() []InFlight {
	s.mu.Lock()
	out := make([]InFlight, 0, len(s.inflight))
	for _, e := range s.inflight {
		out = append(out, *e)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].Locator < out[j].Locator
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

func (s *OrchestratorState) beginBatch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batching {
		return false
	}
	s.batching = true
	return true
}

func (s *OrchestratorState) endBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batching = false
}

// Batching reports whether a batch is running.
func (s *OrchestratorState) Batching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batching
}
