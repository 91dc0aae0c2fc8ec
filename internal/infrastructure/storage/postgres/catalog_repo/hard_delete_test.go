package catalog_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"

	"caixa/internal/core/id"
)

func TestBaseCatalogRepo_Delete_SQL(t *testing.T) {
	repo := NewBaseCatalogRepo[any](nil, "test_table", []string{"id", "name"}, func() any { return nil })
	entityID := id.New()

	q := repo.Builder().
		Delete(repo.tableName).
		Where(squirrel.Eq{"id": entityID})

	sql, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSQL := "DELETE FROM test_table WHERE id = $1"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	if len(args) != 1 || args[0] != entityID {
		t.Errorf("Args mismatch\nwant: [%v]\ngot:  %v", entityID, args)
	}
}

func TestBaseCatalogRepo_SetDeletionMark_SQL(t *testing.T) {
	repo := NewBaseCatalogRepo[any](nil, "test_table", []string{"id", "name"}, func() any { return nil })
	entityID := id.New()

	q := repo.Builder().
		Update(repo.tableName).
		Set("deletion_mark", true).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": entityID})

	sql, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}

	wantSQL := "UPDATE test_table SET deletion_mark = $1, version = version + 1 WHERE id = $2"
	if sql != wantSQL {
		t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", wantSQL, sql)
	}
	if len(args) != 2 {
		t.Fatalf("Args count mismatch\nwant: 2\ngot:  %d", len(args))
	}
	if args[0] != true || args[1] != entityID {
		t.Errorf("Args mismatch\ngot: %v", args)
	}
}
