package cache

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/docflow/llm"
)

// 压缩是对缓存 JSON 的可逆结构变换：属性键缩短为单字符，
// 纯粹为了减小存储体积。compactResponse 与 llm.Response 字段一一对应。

type compactUsage struct {
	P int `json:"p,omitempty"` // prompt_tokens
	N int `json:"n,omitempty"` // completion_tokens
	T int `json:"t,omitempty"` // total_tokens
}

type compactResponse struct {
	I string        `json:"i,omitempty"` // id
	M string        `json:"m,omitempty"` // model
	C string        `json:"c"`           // content
	R string        `json:"r,omitempty"` // role
	F string        `json:"f,omitempty"` // finish_reason
	U *compactUsage `json:"u,omitempty"` // usage
	D int64         `json:"d,omitempty"` // created (unix)
}

// compressResponse 将响应编码为短键 JSON。
func compressResponse(resp *llm.Response) ([]byte, error) {
	c := compactResponse{
		I: resp.ID,
		M: resp.Model,
		C: resp.Content,
		R: string(resp.Role),
		F: resp.FinishReason,
	}
	if resp.Usage != (llm.Usage{}) {
		c.U = &compactUsage{
			P: resp.Usage.PromptTokens,
			N: resp.Usage.CompletionTokens,
			T: resp.Usage.TotalTokens,
		}
	}
	if !resp.Created.IsZero() {
		c.D = resp.Created.Unix()
	}
	return json.Marshal(c)
}

// decompressResponse 还原短键 JSON。失败时返回错误，调用方回退到原始串。
func decompressResponse(data []byte) (*llm.Response, error) {
	var c compactResponse
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	resp := &llm.Response{
		ID:           c.I,
		Model:        c.M,
		Content:      c.C,
		Role:         llm.Role(c.R),
		FinishReason: c.F,
	}
	if c.U != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     c.U.P,
			CompletionTokens: c.U.N,
			TotalTokens:      c.U.T,
		}
	}
	if c.D != 0 {
		resp.Created = time.Unix(c.D, 0)
	}
	return resp, nil
}
