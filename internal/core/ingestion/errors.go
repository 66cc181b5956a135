package ingestion

import "errors"

// ErrIndexWrite はインデックスへの書き込み・永続化に失敗した場合のエラー
// インジェストは手動のバッチ処理なので、このエラーは呼び出し元まで伝播させる
var ErrIndexWrite = errors.New("index write failed")
