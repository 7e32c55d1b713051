package approval

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultTTL = 15 * time.Minute

// Service orchestrates escalation lifecycle operations. It also implements
// the enforcement layer's GrantChecker: an approved, unexpired, unredeemed
// request is a standing grant for its tool+command.
type Service struct {
	store      *Store
	defaultTTL time.Duration
	now        func() time.Time
	mu         sync.Mutex
}

// NewService creates a service backed by <workspace>/state/escalations.json.
func NewService(workspace string) *Service {
	return &Service{
		store:      NewStore(workspace),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// SetDefaultTTL overrides the pending-request lifetime.
func (s *Service) SetDefaultTTL(ttl time.Duration) {
	if ttl > 0 {
		s.defaultTTL = ttl
	}
}

// Create inserts a new pending escalation request. If an equivalent pending
// request already exists, it is returned instead of creating a duplicate.
func (s *Service) Create(input CreateInput) (Request, error) {
	tool := strings.TrimSpace(input.Tool)
	if tool == "" {
		return Request{}, fmt.Errorf("tool is required")
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return Request{}, fmt.Errorf("command is required")
	}

	now := s.now().UTC()
	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Request{}, err
	}

	for i := range data.Requests {
		req := &data.Requests[i]
		if req.Status == StatusPending && req.Tool == tool && req.Command == command {
			if req.ExpiresAt.IsZero() || req.ExpiresAt.After(now) {
				return *req, nil
			}
		}
	}

	request := Request{
		ID:          strconv.FormatInt(data.NextID, 10),
		Tool:        tool,
		Action:      strings.TrimSpace(input.Action),
		Command:     command,
		Tier:        strings.TrimSpace(input.Tier),
		Reason:      strings.TrimSpace(input.Reason),
		Status:      StatusPending,
		RequestedAt: now,
		ExpiresAt:   now.Add(ttl),
	}

	data.NextID++
	data.Requests = append(data.Requests, request)

	if err := s.store.Save(data); err != nil {
		return Request{}, err
	}
	return request, nil
}

// Approve marks a pending request as approved.
func (s *Service) Approve(id string, decision DecisionInput) (Request, error) {
	return s.decide(id, StatusApproved, decision, "approved")
}

// Reject marks a pending request as rejected.
func (s *Service) Reject(id string, decision DecisionInput) (Request, error) {
	return s.decide(id, StatusRejected, decision, "rejected")
}

// List returns requests filtered by query values.
func (s *Service) List(query Query) ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	idFilter := strings.TrimSpace(query.ID)
	statusFilter := strings.TrimSpace(string(query.Status))
	toolFilter := strings.TrimSpace(query.Tool)

	result := make([]Request, 0, len(data.Requests))
	for _, req := range data.Requests {
		if idFilter != "" && req.ID != idFilter {
			continue
		}
		if statusFilter != "" && string(req.Status) != statusFilter {
			continue
		}
		if toolFilter != "" && req.Tool != toolFilter {
			continue
		}
		result = append(result, req)
	}
	return result, nil
}

// ExpirePending marks pending requests as expired when TTL has elapsed.
func (s *Service) ExpirePending() ([]Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expired := make([]Request, 0)
	changed := false

	for i := range data.Requests {
		req := &data.Requests[i]
		if req.Status != StatusPending {
			continue
		}
		if req.ExpiresAt.IsZero() || req.ExpiresAt.After(now) {
			continue
		}

		req.Status = StatusExpired
		req.DecidedAt = now
		req.DecidedBy = "system"
		if strings.TrimSpace(req.DecisionNote) == "" {
			req.DecisionNote = "expired by ttl"
		}
		expired = append(expired, *req)
		changed = true
	}

	if changed {
		if err := s.store.Save(data); err != nil {
			return nil, err
		}
	}

	return expired, nil
}

// Approved reports whether a standing grant exists for the tool+command
// pair. Implements enforcement.GrantChecker.
func (s *Service) Approved(tool, command string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return false
	}

	now := s.now().UTC()
	return findGrant(data.Requests, tool, command, now) >= 0
}

// Redeem consumes the standing grant for the tool+command pair. Each
// approval authorizes exactly one execution.
func (s *Service) Redeem(tool, command string) (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Request{}, err
	}

	now := s.now().UTC()
	idx := findGrant(data.Requests, tool, command, now)
	if idx < 0 {
		return Request{}, fmt.Errorf("no standing grant for tool %q", tool)
	}

	req := &data.Requests[idx]
	req.Status = StatusRedeemed
	req.RedeemedAt = now

	if err := s.store.Save(data); err != nil {
		return Request{}, err
	}
	return *req, nil
}

func findGrant(requests []Request, tool, command string, now time.Time) int {
	tool = strings.TrimSpace(tool)
	for i := range requests {
		req := &requests[i]
		if req.Status != StatusApproved {
			continue
		}
		if req.Tool != tool || req.Command != command {
			continue
		}
		if !req.ExpiresAt.IsZero() && !req.ExpiresAt.After(now) {
			continue
		}
		return i
	}
	return -1
}

func (s *Service) decide(id string, status RequestStatus, decision DecisionInput, defaultNote string) (Request, error) {
	requestID := strings.TrimSpace(id)
	if requestID == "" {
		return Request{}, fmt.Errorf("id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load()
	if err != nil {
		return Request{}, err
	}

	now := s.now().UTC()
	decidedBy := strings.TrimSpace(decision.DecidedBy)
	if decidedBy == "" {
		decidedBy = "unknown"
	}
	decisionNote := strings.TrimSpace(decision.Note)
	if decisionNote == "" {
		decisionNote = defaultNote
	}

	for i := range data.Requests {
		req := &data.Requests[i]
		if req.ID != requestID {
			continue
		}
		if req.Status != StatusPending {
			return Request{}, fmt.Errorf("request %s is not pending", requestID)
		}

		req.Status = status
		req.DecidedAt = now
		req.DecidedBy = decidedBy
		req.DecisionNote = decisionNote
		if status == StatusApproved {
			// The grant gets a fresh redemption window from the moment
			// of approval.
			req.ExpiresAt = now.Add(s.defaultTTL)
		}

		if err := s.store.Save(data); err != nil {
			return Request{}, err
		}
		return *req, nil
	}

	return Request{}, fmt.Errorf("request not found: %s", requestID)
}
