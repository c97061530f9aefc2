package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aevon-lab/scoreboard/internal/content"
	"github.com/stretchr/testify/require"
)

func TestAdapter_Profile(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(querySelectProfile)).
		WithArgs("coach").
		WillReturnRows(sqlmock.NewRows([]string{"is_pro", "circle_id"}).AddRow(true, "c9"))
	mock.ExpectQuery(regexp.QuoteMeta(querySelectProfile)).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	p, err := adapter.Profile(context.Background(), "coach")
	require.NoError(t, err)
	require.True(t, p.IsPro)
	require.Equal(t, "c9", p.CircleID)

	p, err = adapter.Profile(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", p.UserID)
	require.False(t, p.IsPro)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_Entity(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(querySelectEntity)).
		WithArgs("comment", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"author_id", "slug", "reward_points", "like_count"}).
			AddRow("author", "great-post", 0, 12))
	mock.ExpectQuery(regexp.QuoteMeta(querySelectEntity)).
		WithArgs("comment", "missing").
		WillReturnError(sql.ErrNoRows)

	e, err := adapter.Entity(context.Background(), "comment", "c1")
	require.NoError(t, err)
	require.Equal(t, "author", e.AuthorID)
	require.Equal(t, 12, e.LikeCount)

	_, err = adapter.Entity(context.Background(), "comment", "missing")
	require.True(t, errors.Is(err, content.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdapter_ProfileViews(t *testing.T) {
	adapter, mock, db := newMockAdapter(t)
	defer db.Close()

	since := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	until := since.AddDate(0, 0, 7)

	mock.ExpectQuery(regexp.QuoteMeta(queryProfileViews)).
		WithArgs(since, until).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "count"}).
			AddRow("alice", 4).
			AddRow("bob", 1))

	views, err := adapter.ProfileViews(context.Background(), since, until)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"alice": 4, "bob": 1}, views)
	require.NoError(t, mock.ExpectationsWereMet())
}
