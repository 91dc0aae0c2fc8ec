package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"caixa/internal/core/entity"
	"caixa/internal/core/id"
)

type MockCatalog struct {
	entity.BaseCatalog
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

func TestExtractDBColumns_EmbeddedFields(t *testing.T) {
	cols := ExtractDBColumns[MockCatalog]()

	expectedCols := []string{
		"id", "deletion_mark", "version", "attributes", "code", "name",
	}

	for _, expected := range expectedCols {
		assert.Contains(t, cols, expected)
	}
}

func TestStructToMap_EmbeddedFields(t *testing.T) {
	cat := MockCatalog{
		BaseCatalog: entity.BaseCatalog{
			BaseEntity: entity.BaseEntity{
				ID:           id.New(),
				DeletionMark: true,
				Version:      5,
			},
		},
		Code: "TEST",
		Name: "Test Name",
	}

	m := StructToMap(cat)

	assert.Equal(t, cat.ID, m["id"])
	assert.Equal(t, true, m["deletion_mark"])
	assert.Equal(t, 5, m["version"])
	assert.Equal(t, "TEST", m["code"])
	assert.Equal(t, "Test Name", m["name"])
}

func TestStructToMap_SkipsIgnoredFields(t *testing.T) {
	type withIgnored struct {
		ID    id.ID  `db:"id"`
		Items []int  `db:"-"`
		Note  string `json:"note"`
	}

	m := StructToMap(withIgnored{ID: id.New(), Items: []int{1}, Note: "x"})

	assert.Contains(t, m, "id")
	assert.NotContains(t, m, "-")
	assert.Len(t, m, 1)
}
