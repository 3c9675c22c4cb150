// Package tokenizer provides token counting used for usage accounting and
// prompt-size telemetry. A tiktoken-backed counter covers OpenAI-family
// models; a character-ratio estimator is the fallback for everything else.
package tokenizer

// Tokenizer 计数器接口。
type Tokenizer interface {
	// CountTokens 返回文本的 token 数（估算或精确值）。
	CountTokens(text string) (int, error)

	// Model 返回计数器绑定的模型名。
	Model() string
}

// ForModel 返回适合给定模型的计数器：已知 OpenAI 家族模型使用 tiktoken，
// 其余回退到字符比率估算器。tiktoken 初始化失败时同样回退，不阻塞调用方。
func ForModel(model string) Tokenizer {
	if t, err := NewTiktokenTokenizer(model); err == nil {
		return t
	}
	return NewEstimatorTokenizer(model)
}

// CountMessages 统计一组文本的总 token 数。
// 计数失败（如 tiktoken 编码数据不可用）时按估算器兜底。
func CountMessages(t Tokenizer, texts ...string) int {
	total := 0
	var fallback Tokenizer
	for _, s := range texts {
		n, err := t.CountTokens(s)
		if err != nil {
			if fallback == nil {
				fallback = NewEstimatorTokenizer(t.Model())
			}
			n, _ = fallback.CountTokens(s)
		}
		total += n
	}
	return total
}
