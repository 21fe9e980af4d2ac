// Package ledger 实现审计账本的哈希链构造与校验
// 条目只追加不修改，IntegrityHash 防篡改，PreviousEntryHash 防插删与乱序
package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/almoner-platform/almoner-allocation/internal/model"
)

// ComputeHash 计算条目的完整性哈希
// 参与哈希的字段固定为八个业务字段，排除两个哈希字段与存储层字段，
// 序列化按键名排序保证跨进程可重算
func ComputeHash(entry *model.AuditEntry) string {
	canonical := map[string]interface{}{
		"entry_id":        entry.EntryID,
		"sequence_number": entry.SequenceNumber,
		"action_type":     string(entry.ActionType),
		"entity_type":     entry.EntityType,
		"entity_id":       entry.EntityID,
		"actor_id":        entry.ActorID,
		"action_data":     entry.ActionData,
		"timestamp":       entry.Timestamp,
	}

	// map 序列化键名恒定有序，数值字段为整型毫秒，无浮点歧义
	data, err := json.Marshal(canonical)
	if err != nil {
		// 全部字段均为基本类型，实际不可达
		return ""
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
