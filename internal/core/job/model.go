package job

import "time"

// Status はジョブの状態を表す
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// IsTerminal は終端状態（SUCCEEDED / FAILED）かどうかを返す
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job は非同期クエリジョブのレコード
//
// PENDING で作成され、SUCCEEDED か FAILED のいずれかに一度だけ遷移する。
// 終端状態に達した後は書き換えない。
type Job struct {
	QueryID   string    `json:"query_id"`
	QueryText string    `json:"query_text"`
	Status    Status    `json:"status"`
	Answer    string    `json:"response_text,omitempty"`
	Sources   []string  `json:"sources"`
	Error     string    `json:"error,omitempty"` // 外部公開してよい形に整形済みのエラー
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeSources は Sources が nil の場合に空スライスにする
// 出力される JSON には常に sources が含まれる
func (j *Job) NormalizeSources() {
	if j.Sources == nil {
		j.Sources = []string{}
	}
}

// Message はキューに流れるジョブメッセージ
type Message struct {
	QueryID   string `json:"query_id"`
	QueryText string `json:"query_text"`
}

// Summary は1ジョブの処理結果の要約
type Summary struct {
	QueryID string `json:"query_id"`
	Status  Status `json:"status"`
	Error   string `json:"error,omitempty"`

	// Redeliver は終端状態を記録できず、メッセージを再配信すべきことを示す
	Redeliver bool `json:"-"`
}

// RecordOutcome は失敗状態の記録結果
// 記録自体に失敗した場合も呼び出し元に伝わるよう、握りつぶさずに返す
type RecordOutcome struct {
	Recorded bool
	Err      error
}

// BatchResult はバッチ処理の結果
type BatchResult struct {
	BatchCount int       `json:"batch_count"`
	Summaries  []Summary `json:"results"`
}

// Redeliveries は再配信が必要なジョブの件数を返す
func (r BatchResult) Redeliveries() int {
	n := 0
	for _, s := range r.Summaries {
		if s.Redeliver {
			n++
		}
	}
	return n
}
