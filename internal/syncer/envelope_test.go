// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package syncer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/pkg/errutil"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestEnvelope_JSONShape(t *testing.T) {
	env, err := NewEnvelope(KindQuestStatusChanged, "alice", StatusChangedPayload{
		QuestID:   "q1",
		OldStatus: quest.StatusKnown,
		NewStatus: quest.StatusCompleted,
	}, testNow)
	require.NoError(t, err)
	assert.NotEmpty(t, env.ID)

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "`+env.ID+`",
		"kind": "questStatusChanged",
		"payload": {"questId": "q1", "oldStatus": "known", "newStatus": "completed"},
		"senderId": "alice",
		"timestamp": "2026-05-04T10:00:00Z"
	}`, string(data))

	var decoded StatusChangedPayload
	require.NoError(t, env.Decode(&decoded))
	assert.Equal(t, quest.StatusCompleted, decoded.NewStatus)
}

func TestEnvelope_NoPayload(t *testing.T) {
	env, err := NewEnvelope(KindRequestSync, "bob", nil, testNow)
	require.NoError(t, err)
	assert.Empty(t, env.Payload)

	p := PermissionsPayload{TargetUserID: "unchanged"}
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, "unchanged", p.TargetUserID)
}

func TestEnvelope_DecodeError(t *testing.T) {
	env := Envelope{ID: "e1", Kind: KindSyncData, Payload: json.RawMessage(`[1,2]`)}
	var p SyncDataPayload
	err := env.Decode(&p)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "DECODE_FAILED")
}

func TestKind_IsMutation(t *testing.T) {
	for _, k := range []Kind{KindQuestCreated, KindQuestUpdated, KindQuestDeleted, KindQuestStatusChanged, KindPermissionsUpdated} {
		assert.True(t, k.IsMutation(), string(k))
	}
	assert.False(t, KindRequestSync.IsMutation())
	assert.False(t, KindSyncData.IsMutation())
}

func TestParseDocumentChange(t *testing.T) {
	c, err := ParseDocumentChange("questTree:12")
	require.NoError(t, err)
	assert.Equal(t, DocumentChange{Key: "questTree", Version: 12}, c)

	for _, bad := range []string{"", "questTree", ":3", "questTree:x"} {
		_, err := ParseDocumentChange(bad)
		assert.Error(t, err, bad)
	}
}
