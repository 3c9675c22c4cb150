package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key 由输入文本确定性地生成内容寻址缓存键：完整 SHA-256 的十六进制。
// 相同输入必得相同键，是"这段输入此前是否已经问过"的唯一标识。
func Key(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
