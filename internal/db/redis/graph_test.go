package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/evergreen/internal/db"
)

func TestGraphQuery_ParsesRows(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match(
			"GRAPH.QUERY", "evergreen_acme",
			`CYPHER limit=5 q="jane" MATCH (e:Entity) WHERE e.name CONTAINS $q RETURN e.name, e.mention_count LIMIT $limit`,
		)).
		Return(mock.Result(mock.RedisArray(
			mock.RedisArray(mock.RedisString("e.name"), mock.RedisString("e.mention_count")),
			mock.RedisArray(
				mock.RedisArray(mock.RedisString("jane doe"), mock.RedisInt64(4)),
				mock.RedisArray(mock.RedisNil(), mock.RedisInt64(0)),
			),
			mock.RedisArray(mock.RedisString("Query internal execution time: 0.2 milliseconds")),
		)))

	s := NewStoreForTest(c)
	res, err := s.GraphQuery(context.Background(), "evergreen_acme",
		"MATCH (e:Entity) WHERE e.name CONTAINS $q RETURN e.name, e.mention_count LIMIT $limit",
		map[string]any{"q": "jane", "limit": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Columns) != 2 || res.Columns[0] != "e.name" {
		t.Fatalf("columns = %v", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	if res.Rows[0][0] != "jane doe" || res.Rows[0][1] != int64(4) {
		t.Errorf("row 0 = %v", res.Rows[0])
	}
	if res.Rows[1][0] != nil {
		t.Errorf("expected nil cell, got %v", res.Rows[1][0])
	}
	if res.Stats["Query internal execution time"] != "0.2 milliseconds" {
		t.Errorf("stats = %v", res.Stats)
	}
}

func TestGraphQuery_StatsOnly(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.Result(mock.RedisArray(
			mock.RedisArray(
				mock.RedisString("Nodes created: 2"),
				mock.RedisString("Relationships created: 1"),
			),
		)))

	s := NewStoreForTest(c)
	res, err := s.GraphQuery(context.Background(), "g", "CREATE (:A)-[:R]->(:B)", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("expected no rows, got %v", res.Rows)
	}
	if res.Stats["Nodes created"] != "2" || res.Stats["Relationships created"] != "1" {
		t.Errorf("stats = %v", res.Stats)
	}
}

func TestGraphReadQuery_EmptyGraph(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "GRAPH.RO_QUERY" && cmd[1] == "g"
		})).
		Return(mock.Result(mock.RedisError("ERR Invalid graph operation on empty key")))

	s := NewStoreForTest(c)
	res, err := s.GraphReadQuery(context.Background(), "g", "MATCH (n) RETURN count(n)", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Rows) != 0 {
		t.Errorf("expected empty result, got %v", res.Rows)
	}
}

func TestGraphQuery_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), gomock.Any()).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	s := NewStoreForTest(c)
	_, err := s.GraphQuery(context.Background(), "g", "RETURN 1", nil)
	if !isDBError(err) {
		t.Errorf("expected db.Error, got %T", err)
	}
}

func TestGraphDelete_Missing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("GRAPH.DELETE", "g")).
		Return(mock.Result(mock.RedisError("ERR Invalid graph operation on empty key")))

	s := NewStoreForTest(c)
	if err := s.GraphDelete(context.Background(), "g"); !errors.Is(err, db.ErrGraphNotFound) {
		t.Errorf("expected ErrGraphNotFound, got %v", err)
	}
}

func TestBuildParamsHeader(t *testing.T) {
	header, err := buildParamsHeader(map[string]any{
		"name":  `O"Brien \ co`,
		"conf":  0.3,
		"ids":   []string{"a", "b"},
		"n":     int64(2),
		"flag":  true,
		"empty": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `CYPHER conf=0.3 empty=null flag=true ids=["a", "b"] n=2 name="O\"Brien \\ co" `
	if header != want {
		t.Errorf("header = %q\nwant     %q", header, want)
	}
}

func TestBuildParamsHeader_Rejects(t *testing.T) {
	if _, err := buildParamsHeader(map[string]any{"bad key": 1}); err == nil {
		t.Error("expected error for invalid parameter name")
	}
	if _, err := buildParamsHeader(map[string]any{"x": struct{}{}}); err == nil {
		t.Error("expected error for unsupported type")
	}
	if h, _ := buildParamsHeader(nil); h != "" {
		t.Errorf("expected empty header, got %q", h)
	}
}
