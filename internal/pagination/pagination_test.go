package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/models"
)

func TestNormalize_Defaults(t *testing.T) {
	q, f, err := Normalize(Raw{}, 50)
	require.NoError(t, err)

	assert.Equal(t, Query{PageNo: 0, PageSize: 10, SortBy: "id", Desc: true}, q)
	assert.Equal(t, Filter{}, f)
	assert.Equal(t, "id DESC", q.OrderClause())
}

func TestNormalize_Valid(t *testing.T) {
	q, f, err := Normalize(Raw{PageNo: "2", PageSize: "25", SortBy: "createdAt", SortDir: "ASC", Title: " Go ", Content: "tips"}, 50)
	require.NoError(t, err)

	assert.Equal(t, 2, q.PageNo)
	assert.Equal(t, 25, q.PageSize)
	assert.False(t, q.Desc)
	assert.Equal(t, 50, q.Offset())
	assert.Equal(t, "created_at ASC, id ASC", q.OrderClause())
	assert.Equal(t, Filter{Title: "Go", Content: "tips"}, f)
}

func TestNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  Raw
	}{
		{"negative page", Raw{PageNo: "-1"}},
		{"non numeric page", Raw{PageNo: "one"}},
		{"zero size", Raw{PageSize: "0"}},
		{"negative size", Raw{PageSize: "-5"}},
		{"size over max", Raw{PageSize: "51"}},
		{"unknown sort column", Raw{SortBy: "password"}},
		{"unknown direction", Raw{SortDir: "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Normalize(tt.raw, 50)
			require.Error(t, err)
			assert.True(t, models.IsCode(err, models.CodeBadRequest))
		})
	}
}

func TestNormalize_ConfiguredMaxBelowCap(t *testing.T) {
	_, _, err := Normalize(Raw{PageSize: "30"}, 20)
	require.Error(t, err)

	q, _, err := Normalize(Raw{}, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, q.PageSize)
}

func TestNewPage_Arithmetic(t *testing.T) {
	tests := []struct {
		total     int64
		size      int
		pageNo    int
		wantPages int
		wantLast  bool
	}{
		{0, 10, 0, 0, true},
		{1, 10, 0, 1, true},
		{10, 10, 0, 1, true},
		{11, 10, 0, 2, false},
		{25, 10, 1, 3, false},
		{25, 10, 2, 3, true},
		{25, 10, 7, 3, true},
	}

	for _, tt := range tests {
		page := NewPage([]int{}, Query{PageNo: tt.pageNo, PageSize: tt.size}, tt.total)
		assert.Equal(t, tt.wantPages, page.TotalPages, "total=%d size=%d", tt.total, tt.size)
		assert.Equal(t, tt.wantLast, page.Last, "total=%d size=%d page=%d", tt.total, tt.size, tt.pageNo)
		assert.NotNil(t, page.Content)
	}
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%hello%", LikePattern("HeLLo"))
	assert.Equal(t, `%50\% off\_now%`, LikePattern("50% off_now"))
	assert.Equal(t, `%a\\b%`, LikePattern(`a\b`))
}
