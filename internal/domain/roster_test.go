package domain

import "testing"

func TestRoster_ConsumeKeepsOrder(t *testing.T) {
	r := NewRoster([]RosterEntry{
		{ID: "101", Name: "Maria Lopez"},
		{ID: "102", Name: "Juan Perez"},
		{ID: "103", Name: "Ana Ruiz"},
	})

	if err := r.Consume(1); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("期望剩余 2，实际 %d", r.Len())
	}

	av := r.Available()
	if len(av) != 2 || av[0].Slot != 0 || av[1].Slot != 2 {
		t.Fatalf("Available 不符合预期：%+v", av)
	}
	rem := r.Remaining()
	if rem[0].ID != "101" || rem[1].ID != "103" {
		t.Fatalf("Remaining 顺序不对：%+v", rem)
	}
}

func TestRoster_ConsumeTwiceFails(t *testing.T) {
	r := NewRoster([]RosterEntry{{ID: "1", Name: "A"}})
	if err := r.Consume(0); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := r.Consume(0); err == nil {
		t.Fatalf("重复消费应失败")
	}
	if err := r.Consume(5); err == nil {
		t.Fatalf("越界下标应失败")
	}
	if r.Len() != 0 {
		t.Fatalf("期望剩余 0，实际 %d", r.Len())
	}
}

func TestRoster_SnapshotIsIndependent(t *testing.T) {
	r := NewRoster([]RosterEntry{{ID: "1", Name: "A"}, {ID: "2", Name: "B"}})
	av := r.Available()
	av[0].Entry.Name = "changed"
	if r.Remaining()[0].Name != "A" {
		t.Fatalf("快照修改不应影响名单")
	}
}

func TestRoster_NilIsEmpty(t *testing.T) {
	var r *Roster
	if r.Len() != 0 || len(r.Available()) != 0 {
		t.Fatalf("nil 名单应视为空")
	}
}
