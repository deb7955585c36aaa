package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SendMessage appends the message to the selected peer's bucket
// synchronously with status sending, then issues the gateway call. On
// acceptance the entry moves to sent and, after the delivery delay, to
// delivered; on failure it moves to error and stays in the bucket.
func (s *Synchronizer) SendMessage(ctx context.Context, content string) error {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoSession
	}
	if s.selectedPeer == "" {
		s.mu.Unlock()
		return ErrNoPeerSelected
	}
	accountID := s.current.ID
	peerID := s.selectedPeer

	seq := s.nextSeq
	s.nextSeq++
	tempID := "local-" + uuid.NewString()
	s.pending[seq] = pendingSend{tempID: tempID, peerID: peerID}
	s.buckets[peerID] = append(s.buckets[peerID], Message{
		ID:          tempID,
		Content:     content,
		SenderID:    accountID,
		RecipientID: peerID,
		CreatedAt:   time.Now(),
		Status:      StatusSending,
		Encrypted:   true,
	})
	s.mu.Unlock()
	s.emit("conversation.updated", peerID)

	_, err := s.gw.SendMessage(ctx, apiID(accountID), apiID(peerID), content)
	if err != nil {
		s.resolvePending(seq, StatusFailed)
		s.setError("failed to send message")
		s.logger.Error("send failed", zap.String("peer_id", peerID), zap.Error(err))
		s.emit("message.send_failed", tempID)
		return fmt.Errorf("send message: %w", err)
	}

	s.resolvePending(seq, StatusSent)
	s.mu.Lock()
	s.clearErrorLocked()
	s.mu.Unlock()
	s.emit("message.send_ack", tempID)

	time.AfterFunc(s.deliveryDelay, func() {
		s.resolvePending(seq, StatusDelivered)
	})

	// Reconciliation and summary refresh are follow-ups, not part of the
	// send contract; their failures are absorbed.
	if err := s.RefreshConversation(ctx, peerID); err != nil {
		s.logger.Warn("post-send reconciliation failed", zap.Error(err))
	}
	s.RefreshSummaries(ctx)
	return nil
}

// resolvePending applies a status transition to the optimistic entry
// correlated by seq. It is a safe no-op when the entry was already
// superseded by reconciliation or the transition is not allowed.
func (s *Synchronizer) resolvePending(seq uint64, to Status) {
	s.mu.Lock()
	p, ok := s.pending[seq]
	if !ok {
		s.mu.Unlock()
		return
	}
	if to == StatusDelivered || to == StatusFailed {
		delete(s.pending, seq)
	}

	var updated bool
	bucket := s.buckets[p.peerID]
	for i := range bucket {
		if bucket[i].ID == p.tempID {
			if bucket[i].Status.CanTransition(to) {
				bucket[i].Status = to
				updated = true
			}
			break
		}
	}
	s.mu.Unlock()

	if updated {
		s.emit("conversation.updated", p.peerID)
	}
}
