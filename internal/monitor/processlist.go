package monitor

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/jackc/pgx/v5"
)

const processlistQuery = `SELECT pid, usename, datname, client_addr::text AS client_addr, state,
	(now() - query_start)::text AS runtime, left(query, 200) AS query
FROM pg_stat_activity
ORDER BY query_start NULLS LAST`

// Processlist dumps the connections of the scheduler database.
type Processlist struct {
	dsn string
}

var _ Dumper = (*Processlist)(nil)

func NewProcesslist(dsn string) *Processlist {
	return &Processlist{dsn: dsn}
}

func (p *Processlist) Name() string {
	return "database processlist"
}

func (p *Processlist) Dump(ctx context.Context) (string, error) {
	conn, err := pgx.Connect(ctx, p.dsn)
	if err != nil {
		return "", fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.Background())

	rows, err := conn.Query(ctx, processlistQuery)
	if err != nil {
		return "", fmt.Errorf("failed to query processlist: %w", err)
	}
	defer rows.Close()

	var out strings.Builder
	w := tabwriter.NewWriter(&out, 0, 4, 2, ' ', 0)

	fields := rows.FieldDescriptions()
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.Name)
	}
	fmt.Fprintln(w, strings.Join(names, "\t"))

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return "", fmt.Errorf("failed to read processlist: %w", err)
		}

		cells := make([]string, 0, len(values))
		for _, v := range values {
			cells = append(cells, formatCell(v))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read processlist: %w", err)
	}

	if err := w.Flush(); err != nil {
		return "", err
	}

	return out.String(), nil
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprint(v)
	return strings.NewReplacer("\t", " ", "\n", " ").Replace(s)
}
