package ingestion

import "fmt"

// FormatChunkID は source:page:index 形式のチャンクIDを生成する
// 例: "data/monopoly.pdf:6:2"
func FormatChunkID(source string, page, index int) string {
	return fmt.Sprintf("%s:%d:%d", source, page, index)
}

func pageID(source string, page int) string {
	return fmt.Sprintf("%s:%d", source, page)
}

// AssignChunkIDs はチャンク列に位置ベースの安定したIDを付与する
//
// チャンクはドキュメント順・ページ順・ページ内の分割順で渡されている必要がある。
// 同じ source:page が続く間はインデックスを1ずつ増やし、変わった時点で0に戻す。
// 順序が崩れた入力ではIDが衝突するが、ここでは検出しない。
// 内容ハッシュを使わないため、同じ入力からは常に同じIDが得られる。
func AssignChunkIDs(chunks []*Chunk) []*Chunk {
	var lastPageID string
	hasLast := false
	index := 0

	for _, c := range chunks {
		current := pageID(c.Source, c.Page)
		if hasLast && current == lastPageID {
			index++
		} else {
			index = 0
		}

		c.Position = index
		c.ID = FormatChunkID(c.Source, c.Page, index)
		lastPageID = current
		hasLast = true
	}

	return chunks
}
