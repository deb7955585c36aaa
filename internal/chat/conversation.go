package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// SelectPeer makes peerID the active conversation: it reconciles the
// bucket against the server, then best-effort marks the conversation
// read and refreshes summaries so the unread badge clears.
func (s *Synchronizer) SelectPeer(ctx context.Context, peerID string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	accountID := s.current.ID
	s.selectedPeer = peerID
	s.mu.Unlock()
	s.emit("conversation.selected", peerID)

	if err := s.RefreshConversation(ctx, peerID); err != nil {
		return err
	}

	if err := s.gw.MarkConversationRead(ctx, apiID(accountID), apiID(peerID)); err != nil {
		// Mark-read is optional; unread counts converge on the next refresh.
		s.logger.Warn("mark conversation read failed",
			zap.String("peer_id", peerID), zap.Error(err))
	} else {
		s.RefreshSummaries(ctx)
	}
	return nil
}

// RefreshConversation fetches the full two-party history for peerID and
// replaces the bucket wholesale. An in-flight send's optimistic entry
// survives only until this replacement; its status timers no-op once the
// temporary id is gone. Completions from an older refresh are discarded.
func (s *Synchronizer) RefreshConversation(ctx context.Context, peerID string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	accountID := s.current.ID
	s.bucketGen[peerID]++
	gen := s.bucketGen[peerID]
	s.mu.Unlock()

	s.beginLoading()
	wireMsgs, err := s.gw.GetConversation(ctx, apiID(accountID), apiID(peerID))
	s.endLoading()
	if err != nil {
		// Absorbed locally: the stale bucket stays visible and the next
		// trigger retries. Only the caller sees the error.
		s.logger.Error("conversation fetch failed", zap.String("peer_id", peerID), zap.Error(err))
		return fmt.Errorf("fetch conversation: %w", err)
	}

	bucket := make([]Message, 0, len(wireMsgs))
	for _, wm := range wireMsgs {
		bucket = append(bucket, fromWire(wm))
	}

	s.mu.Lock()
	if gen != s.bucketGen[peerID] {
		s.mu.Unlock()
		return nil
	}
	s.buckets[peerID] = bucket
	s.clearErrorLocked()
	s.mu.Unlock()
	s.emit("conversation.updated", peerID)
	return nil
}
