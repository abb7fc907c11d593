package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs a UNION ALL over scripts and feedback comments. The 'simple'
// configuration matches the generated columns, since scripts are written in
// any language.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	countSQL, dataSQL, args := buildPgQueries(q)
	if countSQL == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.DocumentID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func buildPgQueries(q Query) (countSQL, dataSQL string, args []any) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args = []any{q.Text}
	docFilter, threadFilter := "", ""
	if q.DocumentID != "" {
		args = append(args, q.DocumentID)
		docFilter = " AND d.id = $2"
		threadFilter = " AND t.document_id = $2"
	}

	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultDocument {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title,
				ts_headline('simple', d.body, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				d.id AS document_id,
				ts_rank(d.fts, %s) AS rank
			FROM documents d
			WHERE d.fts @@ %s%s`, tsQuery, tsQuery, tsQuery, docFilter))
	}
	if q.FilterType == "" || q.FilterType == ResultThread {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'thread'::text AS type, t.id, t.highlighted_text AS title,
				ts_headline('simple', c.body, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				t.document_id,
				ts_rank(c.search_vector, %s) AS rank
			FROM thread_comments c
			JOIN comment_threads t ON t.id = c.thread_id
			WHERE c.search_vector @@ %s%s`, tsQuery, tsQuery, tsQuery, threadFilter))
	}
	if len(subQueries) == 0 {
		return "", "", nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL = fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL = fmt.Sprintf(`SELECT type, id, title, snippet, document_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)
	return countSQL, dataSQL, args
}

// LoadAllRecords returns every searchable record for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []ThreadRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `SELECT id, title, body FROM documents`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Body); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	threadRows, err := p.db.QueryContext(ctx, `
		SELECT t.id, t.document_id, t.highlighted_text, t.resolved,
			COALESCE(string_agg(c.body, E'\n' ORDER BY c.position), ''),
			COALESCE(array_to_string(array_agg(DISTINCT c.author), E'\x1f'), ''),
			COALESCE(array_to_string(array_agg(DISTINCT c.category) FILTER (WHERE c.category IS NOT NULL), E'\x1f'), '')
		FROM comment_threads t
		LEFT JOIN thread_comments c ON c.thread_id = t.id
		GROUP BY t.id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load threads: %w", err)
	}
	defer threadRows.Close()

	records := make([]ThreadRecord, 0)
	for threadRows.Next() {
		var (
			t                   ThreadRecord
			authors, categories string
		)
		if err := threadRows.Scan(&t.ID, &t.DocumentID, &t.HighlightedText, &t.Resolved, &t.Body, &authors, &categories); err != nil {
			return nil, nil, fmt.Errorf("scan thread: %w", err)
		}
		t.Authors = splitAgg(authors)
		t.Categories = splitAgg(categories)
		records = append(records, t)
	}
	if err := threadRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate threads: %w", err)
	}
	return documents, records, nil
}

func splitAgg(v string) []string {
	if v == "" {
		return []string{}
	}
	return strings.Split(v, "\x1f")
}
