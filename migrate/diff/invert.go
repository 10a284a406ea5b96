package diff

import "fmt"

// Invert returns the structural inverse of an operation. Drops and modifies
// invert exactly because the forward operation captured the prior definition.
func Invert(op Operation) (Operation, error) {
	switch op.Type {
	case OpCreateTable:
		return Operation{
			Type:        OpDropTable,
			Table:       op.Table,
			TableDef:    op.TableDef,
			Destructive: true,
		}, nil
	case OpDropTable:
		return Operation{Type: OpCreateTable, Table: op.Table, TableDef: op.TableDef}, nil
	case OpAddColumn:
		return Operation{
			Type:        OpDropColumn,
			Table:       op.Table,
			Column:      op.Column,
			Destructive: true,
		}, nil
	case OpDropColumn:
		return Operation{Type: OpAddColumn, Table: op.Table, Column: op.Column}, nil
	case OpModifyColumn:
		return Operation{
			Type:        OpModifyColumn,
			Table:       op.Table,
			OldColumn:   op.NewColumn,
			NewColumn:   op.OldColumn,
			Destructive: IsLossyChange(*op.NewColumn, *op.OldColumn),
		}, nil
	case OpRenameColumn:
		return Operation{
			Type:      OpRenameColumn,
			Table:     op.Table,
			OldName:   op.NewName,
			NewName:   op.OldName,
			OldColumn: op.NewColumn,
			NewColumn: op.OldColumn,
		}, nil
	case OpAddIndex:
		return Operation{Type: OpDropIndex, Table: op.Table, Index: op.Index}, nil
	case OpDropIndex:
		return Operation{Type: OpAddIndex, Table: op.Table, Index: op.Index}, nil
	case OpAddForeignKey:
		return Operation{Type: OpDropForeignKey, Table: op.Table, ForeignKey: op.ForeignKey}, nil
	case OpDropForeignKey:
		return Operation{Type: OpAddForeignKey, Table: op.Table, ForeignKey: op.ForeignKey}, nil
	case OpRenameCandidate:
		return Operation{}, &AmbiguityError{Table: op.Table, OldName: op.OldName, NewName: op.NewName}
	default:
		return Operation{}, fmt.Errorf("cannot invert unknown operation type %q", op.Type)
	}
}

// InvertAll inverts a forward operation list: each operation is inverted and
// the order reversed, so objects detach in the opposite order they attached.
func InvertAll(ops []Operation) ([]Operation, error) {
	out := make([]Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		inv, err := Invert(ops[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}
