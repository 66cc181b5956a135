package job

import (
	"encoding/json"
	"fmt"
)

// batchPayload はキューのバッチ配信形式（{"Records":[{"body":"<json>"}]}）
type batchPayload struct {
	Records []struct {
		Body string `json:"body"`
	} `json:"Records"`
}

// DecodePayload はジョブ入力を解釈する
//
// "Records" を持つ場合はバッチとして各 body をメッセージに変換し、isBatch=true を返す。
// 解釈できない body は空のメッセージとして残し、処理側で個別に失敗させる。
// それ以外は単一メッセージとして扱う。
func DecodePayload(data []byte) (msgs []Message, isBatch bool, err error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false, fmt.Errorf("failed to decode payload: %w", err)
	}

	if _, ok := probe["Records"]; ok {
		var batch batchPayload
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, true, fmt.Errorf("failed to decode batch payload: %w", err)
		}
		msgs = make([]Message, 0, len(batch.Records))
		for _, rec := range batch.Records {
			var msg Message
			if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
				msg = Message{}
			}
			msgs = append(msgs, msg)
		}
		return msgs, true, nil
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false, fmt.Errorf("failed to decode job message: %w", err)
	}
	return []Message{msg}, false, nil
}
