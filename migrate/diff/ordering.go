package diff

import "sort"

// Canonical operation order: creates first, then column adds, then
// modifies/renames, then index and foreign-key adds, drops last. Drops are
// ordered last so nothing references an object before it is safely detached,
// and within drops constraints detach before columns, columns before tables.
var opRank = map[OpType]int{
	OpCreateTable:     0,
	OpAddColumn:       1,
	OpModifyColumn:    2,
	OpRenameCandidate: 2,
	OpRenameColumn:    2,
	OpAddIndex:        3,
	OpAddForeignKey:   3,
	OpDropIndex:       4,
	OpDropForeignKey:  4,
	OpDropColumn:      5,
	OpDropTable:       6,
}

// Order sorts operations into the canonical order. The sort is stable, so
// operations of the same kind keep their discovery order and the result is
// deterministic.
func Order(ops []Operation) []Operation {
	ordered := append([]Operation(nil), ops...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return opRank[ordered[i].Type] < opRank[ordered[j].Type]
	})
	return ordered
}
