package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationQueryNormalize(t *testing.T) {
	q := PaginationQuery{}
	q.Normalize(10, 100)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 10, q.PageSize)

	q = PaginationQuery{Page: -3, PageSize: 500}
	q.Normalize(10, 100)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, 10, q.PageSize)

	q = PaginationQuery{Page: 4, PageSize: 50}
	q.Normalize(10, 100)
	assert.Equal(t, 4, q.Page)
	assert.Equal(t, 50, q.PageSize)
}

func TestNewPaginationResult(t *testing.T) {
	result := NewPaginationResult(0, 1, 10)
	assert.Equal(t, int64(0), result.TotalPages)

	result = NewPaginationResult(21, 2, 10)
	assert.Equal(t, int64(21), result.Total)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, int64(3), result.TotalPages)
}
