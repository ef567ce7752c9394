package domain

import "fmt"

// RosterEntry 是名单中的一行：首个空白分隔 token 为标识，剩余部分为姓名。
type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Slot 是条目在名单中的稳定下标（构建后不再变化，消费也不会移动其它条目）。
type Slot int

// SlotEntry 是 Available 返回的快照元素。
type SlotEntry struct {
	Slot  Slot
	Entry RosterEntry
}

// Roster 是按原顺序保存的名单，消费只打标记，不做原地删除。
//
// 不变量：
// - 条目顺序在构建后固定
// - 每个条目最多被 Consume 一次
type Roster struct {
	entries  []RosterEntry
	consumed []bool
	left     int
}

func NewRoster(entries []RosterEntry) *Roster {
	return &Roster{
		entries:  append([]RosterEntry(nil), entries...),
		consumed: make([]bool, len(entries)),
		left:     len(entries),
	}
}

// Len 返回尚未消费的条目数。
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return r.left
}

// Available 返回未消费条目的快照（按名单顺序）。调用方修改快照不会影响名单。
func (r *Roster) Available() []SlotEntry {
	if r == nil {
		return nil
	}
	out := make([]SlotEntry, 0, r.left)
	for i, e := range r.entries {
		if r.consumed[i] {
			continue
		}
		out = append(out, SlotEntry{Slot: Slot(i), Entry: e})
	}
	return out
}

// Consume 把 slot 标记为已使用。
func (r *Roster) Consume(s Slot) error {
	i := int(s)
	if r == nil || i < 0 || i >= len(r.entries) {
		return fmt.Errorf("非法名单下标：%d", i)
	}
	if r.consumed[i] {
		return fmt.Errorf("名单条目已被使用：%s %s", r.entries[i].ID, r.entries[i].Name)
	}
	r.consumed[i] = true
	r.left--
	return nil
}

// Remaining 返回未消费的条目（按名单顺序）。
func (r *Roster) Remaining() []RosterEntry {
	av := r.Available()
	out := make([]RosterEntry, 0, len(av))
	for _, se := range av {
		out = append(out, se.Entry)
	}
	return out
}
