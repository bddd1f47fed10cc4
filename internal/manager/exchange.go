// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/holomush/questkeeper/internal/access"
	"github.com/holomush/questkeeper/internal/notify"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/syncer"
)

// SchemaID is the $id of the export document schema.
const SchemaID = "https://holomush.dev/schemas/questkeeper-export.schema.json"

// ImportConstraint selects the export format versions Import accepts.
const ImportConstraint = "~" + quest.FormatVersion

// ExportFile is the portable backup of both documents.
type ExportFile struct {
	QuestTree   quest.Snapshot      `json:"questTree" jsonschema:"required"`
	Permissions access.PolicyRecord `json:"permissions" jsonschema:"required"`
	ExportedAt  time.Time           `json:"exportedAt"`
	AppVersion  string              `json:"appVersion,omitempty"`
	// FormatVersion is absent from exports written before versioning.
	FormatVersion string `json:"formatVersion,omitempty"`
}

// ExportData returns the current state as an export document. GM only.
func (m *Manager) ExportData(ctx context.Context, userID string) (_ *ExportFile, err error) {
	_, done := m.begin(ctx, "export", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireGM(userID); err != nil {
		return nil, err
	}
	return &ExportFile{
		QuestTree:     m.graph.ToSnapshot(),
		Permissions:   m.policy.ToRecord(),
		ExportedAt:    m.clock.Now(),
		AppVersion:    m.appVersion,
		FormatVersion: quest.FormatVersion,
	}, nil
}

// ImportData replaces all state with the export in data after
// confirmation. It reports false when the user declined.
func (m *Manager) ImportData(ctx context.Context, data []byte, userID string) (_ bool, err error) {
	ctx, done := m.begin(ctx, "import", userID)
	defer done(&err)

	m.mu.Lock()
	if err := m.requireGM(userID); err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.mu.Unlock()

	file, err := ParseExport(data)
	if err != nil {
		return false, err
	}
	count := len(file.QuestTree.Quests)
	message := fmt.Sprintf("Import %d quest(s)? This replaces all existing data.", count)
	if ok, err := m.confirm(ctx, "Import data", message); err != nil || !ok {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	graph := quest.FromSnapshot(file.QuestTree, m.limits)
	if n := graph.Repair(); n > 0 {
		m.logger.WarnContext(ctx, "repaired imported quest tree", "changes", n)
	}
	if err := m.replaceAll(ctx, graph, access.FromRecord(file.Permissions)); err != nil {
		return false, err
	}
	m.inform(ctx, notify.KindQuestCreated, "", fmt.Sprintf("%d quest(s) imported", count))
	return true, nil
}

// Reset deletes every quest and permission override after confirmation.
// GM only. It reports false when the user declined.
func (m *Manager) Reset(ctx context.Context, userID string) (_ bool, err error) {
	ctx, done := m.begin(ctx, "reset", userID)
	defer done(&err)

	m.mu.Lock()
	if err := m.requireGM(userID); err != nil {
		m.mu.Unlock()
		return false, err
	}
	m.mu.Unlock()

	if ok, err := m.confirm(ctx, "Reset quest data",
		"Delete every quest and permission override? This cannot be undone."); err != nil || !ok {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Empty documents are written rather than deleted so versions keep
	// increasing for other clients.
	if err := m.replaceAll(ctx, quest.NewGraph(m.limits), access.NewPolicy()); err != nil {
		return false, err
	}
	m.inform(ctx, notify.KindQuestDeleted, "", "Quest data reset")
	return true, nil
}

// replaceAll commits a new graph and policy and tells every client to
// reload. Callers hold m.mu.
func (m *Manager) replaceAll(ctx context.Context, graph *quest.Graph, policy *access.Policy) error {
	if err := m.commitGraph(ctx, graph); err != nil {
		return err
	}
	if err := m.commitPolicy(ctx, policy); err != nil {
		return err
	}
	m.publish(ctx, syncer.KindPermissionsUpdated, syncer.PermissionsPayload{})
	return nil
}

// ParseExport validates data against the export schema and decodes it.
// Null values are ignored, and a missing formatVersion marks a legacy
// export, which is accepted.
func ParseExport(data []byte) (*ExportFile, error) {
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, errInvalidf("export is not valid JSON: %v", err)
	}
	doc = pruneNulls(doc)

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, oops.In("manager").
			Code(CodeValidation).
			Public("Validation error: export does not match the expected format").
			Wrap(fmt.Errorf("%w: %w", ErrValidation, err))
	}

	var file ExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errInvalidf("export could not be decoded: %v", err)
	}
	if file.FormatVersion != "" {
		if err := checkFormatVersion(file.FormatVersion); err != nil {
			return nil, err
		}
	}
	return &file, nil
}

func checkFormatVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return errInvalidf("format version %q is not a valid version", v)
	}
	constraint, err := semver.NewConstraint(ImportConstraint)
	if err != nil {
		return oops.In("manager").With("constraint", ImportConstraint).Wrap(err)
	}
	if !constraint.Check(version) {
		return errInvalidf("format version %s is not supported (want %s)", v, ImportConstraint)
	}
	return nil
}

func pruneNulls(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			if child == nil {
				delete(val, k)
				continue
			}
			val[k] = pruneNulls(child)
		}
		return val
	case []any:
		out := val[:0]
		for _, child := range val {
			if child != nil {
				out = append(out, pruneNulls(child))
			}
		}
		return out
	default:
		return v
	}
}

var rawMessageType = reflect.TypeOf(json.RawMessage{})

// ExportSchema returns the JSON Schema of the export document.
func ExportSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == rawMessageType {
				return &jsonschema.Schema{}
			}
			return nil
		},
	}
	schema := r.Reflect(&ExportFile{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "QuestKeeper export"
	schema.Description = "Backup of the quest tree and permission policy"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("manager").Code("SCHEMA_FAILED").Wrap(err)
	}
	return data, nil
}

var (
	schemaOnce sync.Once
	schemaVal  *jschema.Schema
	schemaErr  error
)

func compiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := ExportSchema()
		if err != nil {
			schemaErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			schemaErr = oops.In("manager").Code("SCHEMA_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("export.schema.json", doc); err != nil {
			schemaErr = oops.In("manager").Code("SCHEMA_FAILED").Wrap(err)
			return
		}
		schemaVal, schemaErr = c.Compile("export.schema.json")
		if schemaErr != nil {
			schemaErr = oops.In("manager").Code("SCHEMA_FAILED").Wrap(schemaErr)
		}
	})
	return schemaVal, schemaErr
}

// Verify reports integrity problems in the local quest tree.
func (m *Manager) Verify(ctx context.Context, userID string) (_ []quest.Problem, err error) {
	_, done := m.begin(ctx, "verify", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.authorize(userID, access.CapView); err != nil {
		return nil, err
	}
	return m.graph.Verify(), nil
}

// Repair fixes integrity problems and commits the result. GM only. It
// returns the number of changes made.
func (m *Manager) Repair(ctx context.Context, userID string) (_ int, err error) {
	ctx, done := m.begin(ctx, "repair", userID)
	defer done(&err)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireGM(userID); err != nil {
		return 0, err
	}
	staged := m.graph.Clone()
	n := staged.Repair()
	if n == 0 {
		return 0, nil
	}
	if err := m.commitGraph(ctx, staged); err != nil {
		return 0, err
	}
	m.publish(ctx, syncer.KindQuestUpdated, nil)
	return n, nil
}
