// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package syncer keeps quest managers in different processes consistent by
// exchanging change notifications over a shared channel.
package syncer

import (
	"encoding/json"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/core"
	"github.com/holomush/questkeeper/internal/quest"
)

// Kind identifies an envelope's payload.
type Kind string

// Envelope kinds.
const (
	KindQuestCreated       Kind = "questCreated"
	KindQuestUpdated       Kind = "questUpdated"
	KindQuestDeleted       Kind = "questDeleted"
	KindQuestStatusChanged Kind = "questStatusChanged"
	KindPermissionsUpdated Kind = "permissionsUpdated"
	KindRequestSync        Kind = "requestSync"
	KindSyncData           Kind = "syncData"
)

// IsMutation reports whether k announces a change to stored state.
func (k Kind) IsMutation() bool {
	switch k {
	case KindQuestCreated, KindQuestUpdated, KindQuestDeleted, KindQuestStatusChanged, KindPermissionsUpdated:
		return true
	}
	return false
}

// Envelope is one message on the sync channel.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SenderID  string          `json:"senderId"`
	Timestamp time.Time       `json:"timestamp"`
	// Truncated is set by transports that dropped an oversized payload.
	// Receivers fall back to reading the shared store.
	Truncated bool `json:"truncated,omitempty"`
}

// NewEnvelope encodes payload into a fresh envelope.
func NewEnvelope(kind Kind, senderID string, payload any, now time.Time) (Envelope, error) {
	env := Envelope{ID: core.NewID(now), Kind: kind, SenderID: senderID, Timestamp: now}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, oops.In("syncer").Code("ENCODE_FAILED").With("kind", kind).Wrap(err)
		}
		env.Payload = data
	}
	return env, nil
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return oops.In("syncer").Code("DECODE_FAILED").With("kind", e.Kind).With("envelope", e.ID).Wrap(err)
	}
	return nil
}

// QuestPayload accompanies questCreated and questUpdated.
type QuestPayload struct {
	Quest quest.Record `json:"quest"`
}

// QuestDeletedPayload accompanies questDeleted.
type QuestDeletedPayload struct {
	QuestID    string `json:"questId"`
	QuestTitle string `json:"questTitle"`
}

// StatusChangedPayload accompanies questStatusChanged.
type StatusChangedPayload struct {
	QuestID   string       `json:"questId"`
	OldStatus quest.Status `json:"oldStatus"`
	NewStatus quest.Status `json:"newStatus"`
}

// PermissionsPayload accompanies permissionsUpdated. An empty target means
// everyone.
type PermissionsPayload struct {
	TargetUserID string `json:"targetUserId,omitempty"`
}

// SyncDataPayload answers a requestSync.
type SyncDataPayload struct {
	TargetUserID string              `json:"targetUserId"`
	QuestTree    quest.Snapshot      `json:"questTree"`
	Permissions  access.PolicyRecord `json:"permissions"`
}
