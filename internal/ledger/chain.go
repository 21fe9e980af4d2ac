package ledger

import (
	"encoding/json"
	"time"

	"github.com/almoner-platform/almoner-allocation/internal/model"
	"github.com/almoner-platform/almoner-allocation/pkg/errors"
	"github.com/almoner-platform/almoner-allocation/pkg/id"
)

// EntrySpec 一条待追加审计记录的业务内容
type EntrySpec struct {
	ActionType model.AuditActionType
	EntityType string
	EntityID   string
	ActorID    string
	ActionData map[string]interface{}
}

// BuildEntry 在链尾之后构造下一条目
// tail 为 nil 表示空链，序号从 1 起且前驱哈希为空串
// 构造是纯计算，持久化与串行化写入由调用方负责
func BuildEntry(tail *model.AuditEntry, spec EntrySpec, nowMillis int64) (*model.AuditEntry, error) {
	if spec.ActionType == "" || spec.EntityType == "" || spec.EntityID == "" {
		return nil, errors.ErrInvalidRequest.WithMessage("audit entry requires action type, entity type and entity id")
	}
	if nowMillis == 0 {
		nowMillis = time.Now().UnixMilli()
	}

	actionData := spec.ActionData
	if actionData == nil {
		actionData = map[string]interface{}{}
	}
	payload, err := json.Marshal(actionData)
	if err != nil {
		return nil, errors.WrapWithCause(errors.ErrAuditAppend, err, "serialize action data")
	}

	entry := &model.AuditEntry{
		EntryID:        id.NextReference("AE"),
		SequenceNumber: 1,
		ActionType:     spec.ActionType,
		EntityType:     spec.EntityType,
		EntityID:       spec.EntityID,
		ActorID:        spec.ActorID,
		ActionData:     string(payload),
		Timestamp:      nowMillis,
	}
	if tail != nil {
		entry.SequenceNumber = tail.SequenceNumber + 1
		entry.PreviousEntryHash = tail.IntegrityHash
	}
	entry.IntegrityHash = ComputeHash(entry)

	return entry, nil
}
