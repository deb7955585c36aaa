package chat

import (
	"context"

	"go.uber.org/zap"
)

// RefreshSummaries refetches the contact summary rows for the session
// account and replaces the cache wholesale. Failures are absorbed:
// summaries are an enhancement, the caller's primary action already
// succeeded. Stale completions are discarded by generation.
func (s *Synchronizer) RefreshSummaries(ctx context.Context) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	accountID := s.current.ID
	s.summaryGen++
	gen := s.summaryGen
	s.mu.Unlock()

	rows, err := s.gw.GetContactSummaries(ctx, apiID(accountID))
	if err != nil {
		s.logger.Warn("summary refresh failed", zap.Error(err))
		return
	}

	summaries := make([]Summary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, fromWireSummary(row))
	}

	s.mu.Lock()
	if gen != s.summaryGen {
		s.mu.Unlock()
		return
	}
	s.summaries = summaries
	s.mu.Unlock()
	s.emit("summary.refreshed", len(summaries))
}

// Summaries returns a snapshot of the cached contact summary rows.
func (s *Synchronizer) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, len(s.summaries))
	copy(out, s.summaries)
	return out
}

// GetLastMessage returns the preview for a contact: the cached summary
// row when present and non-empty, else the last entry of the local peer
// bucket. ok is false when neither source has anything to show.
func (s *Synchronizer) GetLastMessage(peerID string) (Preview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range s.summaries {
		if row.ContactID == peerID && row.LastMessageText != "" {
			p := Preview{Text: truncatePreview(row.LastMessageText)}
			if !row.LastMessageTime.IsZero() {
				p.Time = row.LastMessageTime.Format("15:04")
			}
			return p, true
		}
	}

	bucket := s.buckets[peerID]
	if len(bucket) == 0 {
		return Preview{}, false
	}
	last := bucket[len(bucket)-1]
	p := Preview{Text: truncatePreview(last.Content)}
	if !last.CreatedAt.IsZero() {
		p.Time = last.CreatedAt.Format("15:04")
	}
	return p, true
}

// GetUnreadCount returns the unread count from the summary cache. There
// is no local fallback: a peer absent from the cache reads as zero.
func (s *Synchronizer) GetUnreadCount(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.summaries {
		if row.ContactID == peerID {
			return row.UnreadCount
		}
	}
	return 0
}
