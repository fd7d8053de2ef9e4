package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// syntheticPrefix 合成 item_id 前缀，便于与平台原生 ID 区分
const syntheticPrefix = "syn-"

// ItemID 平台给出行 ID 时直接使用，否则由 (order_id, 行序号) 确定性生成
func ItemID(orderID string, index int, platformItemID string) string {
	if id := strings.TrimSpace(platformItemID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(orderID + "#" + strconv.Itoa(index)))
	return syntheticPrefix + hex.EncodeToString(sum[:])[:16]
}

// IsSynthetic 是否为合成的 item_id
func IsSynthetic(itemID string) bool {
	return strings.HasPrefix(itemID, syntheticPrefix)
}
