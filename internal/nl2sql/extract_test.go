package nl2sql

import "testing"

func TestExtractSQL(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "fence with trailing commentary",
			raw:  "Sure! ```sql\nSELECT * FROM todolist;\n``` Response : done",
			want: "SELECT * FROM todolist",
		},
		{
			name: "fence without language tag",
			raw:  "```\nSELECT COUNT(*) FROM todolist;\n```",
			want: "SELECT COUNT(*) FROM todolist",
		},
		{
			name: "fence with upper case tag",
			raw:  "```SQL\nSELECT title FROM todolist WHERE is_done = 0\n```\nThis lists open tasks.",
			want: "SELECT title FROM todolist WHERE is_done = 0",
		},
		{
			name: "fence whose first line is the statement",
			raw:  "```\nSELECT\n  title\nFROM todolist;\n```",
			want: "SELECT\n  title\nFROM todolist",
		},
		{
			name: "inline fence tag",
			raw:  "```sql SELECT 1```",
			want: "SELECT 1",
		},
		{
			name: "unfenced with prefix and marker",
			raw:  "SQL: SELECT title FROM todolist; Response : the titles",
			want: "SELECT title FROM todolist",
		},
		{
			name: "unfenced with explanation",
			raw:  "Here you go:\nDELETE FROM todolist WHERE is_done = 1\nExplanation: removes finished tasks",
			want: "DELETE FROM todolist WHERE is_done = 1",
		},
		{
			name: "verb used in prose is skipped",
			raw:  "I will select the rows for you. SELECT id FROM todolist;",
			want: "SELECT id FROM todolist",
		},
		{
			name: "lower case statement",
			raw:  "answer: select id from todolist;",
			want: "select id from todolist",
		},
		{
			name: "semicolon inside literal",
			raw:  "SELECT id FROM todolist WHERE title = 'a;b'; SELECT 2;",
			want: "SELECT id FROM todolist WHERE title = 'a;b'",
		},
		{
			name: "common table expression",
			raw:  "WITH open AS (SELECT * FROM todolist WHERE is_done = 0) SELECT COUNT(*) FROM open;",
			want: "WITH open AS (SELECT * FROM todolist WHERE is_done = 0) SELECT COUNT(*) FROM open",
		},
		{
			name: "lower case statement with upper case subquery",
			raw:  "select title from todolist where id in (SELECT id FROM todolist WHERE is_done = 1)",
			want: "select title from todolist where id in (SELECT id FROM todolist WHERE is_done = 1)",
		},
		{
			name: "lower case common table expression",
			raw:  "with open as (select * from todolist) select count(*) from open;",
			want: "with open as (select * from todolist) select count(*) from open",
		},
		{
			name: "prose with before statement",
			raw:  "Here is the query with a filter: select id from todolist where is_done = 0;",
			want: "select id from todolist where is_done = 0",
		},
		{
			name: "no verb",
			raw:  "  I cannot answer that question.  ",
			want: "I cannot answer that question.",
		},
		{
			name: "empty",
			raw:  "   ",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractSQL(tc.raw); got != tc.want {
				t.Fatalf("ExtractSQL(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestExtractSQLIsIdempotentOnCleanSQL(t *testing.T) {
	inputs := []string{
		"SELECT * FROM todolist",
		"SELECT COUNT(*) FROM todolist WHERE is_done = 1",
		"UPDATE todolist SET is_done = 1 WHERE id = 2",
		"INSERT INTO project (name) VALUES ('dbtalk')",
		"SELECT title FROM todolist WHERE detail = 'Note: later'",
		"select title from todolist where id in (SELECT id FROM todolist WHERE is_done = 1)",
		"with open as (select * from todolist) select count(*) from open",
	}
	for _, input := range inputs {
		once := ExtractSQL(input)
		if twice := ExtractSQL(once); twice != once {
			t.Fatalf("ExtractSQL not idempotent for %q: %q then %q", input, once, twice)
		}
	}
}
