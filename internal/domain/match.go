package domain

// Match 是一次名单匹配的结果。Slot 指向 Roster 中的条目，用于之后的 Consume。
type Match struct {
	Slot  Slot
	Entry RosterEntry
	Score float64
}
