// Package match 把 OCR 文本与名单条目做模糊匹配。
package match

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"

	"github.com/John-Robertt/examren/internal/domain"
)

// Ratio 返回 a 相对 b 的相似度（Ratcliff/Obershelp，等价于 difflib.SequenceMatcher(None, a, b).ratio()）。
//
// 说明：
// - 以 rune 为单位比较；两侧先做 NFC 规范化，避免 OCR 输出分解形式的重音字符
// - 该度量不对称：Ratio(a, b) 不一定等于 Ratio(b, a)；匹配时固定以名单字段为 a、OCR 文本为 b
// - 两侧都为空时返回 1
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(runes(a), runes(b))
	return m.Ratio()
}

func runes(s string) []string {
	s = norm.NFC.String(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "")
}

// Score 取标识与姓名两者中更高的相似度。
func Score(e domain.RosterEntry, text string) float64 {
	byID := Ratio(e.ID, text)
	byName := Ratio(e.Name, text)
	if byName > byID {
		return byName
	}
	return byID
}

// Best 在候选中选出得分最高的条目。
//
// 规则：
// - 严格大于才替换，得分相同取先出现者（结果只依赖名单顺序）
// - 不设最低分：候选非空时必然返回一个条目；只有候选为空才返回 ok=false
func Best(text string, candidates []domain.SlotEntry) (domain.Match, bool) {
	if len(candidates) == 0 {
		return domain.Match{}, false
	}
	best := domain.Match{Slot: candidates[0].Slot, Entry: candidates[0].Entry, Score: -1}
	for _, c := range candidates {
		s := Score(c.Entry, text)
		if s > best.Score {
			best = domain.Match{Slot: c.Slot, Entry: c.Entry, Score: s}
		}
	}
	return best, true
}
