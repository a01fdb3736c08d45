// Package postgis stores topologies in a PostgreSQL table.
package postgis

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	pq "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/omniscale/osmtopo/log"
	"github.com/omniscale/osmtopo/pipeline"
	"github.com/omniscale/osmtopo/topology"
)

type SQLError struct {
	query         string
	originalError error
}

func (e *SQLError) Error() string {
	return fmt.Sprintf("SQL Error: %s in query %s", e.originalError.Error(), e.query)
}

func (e *SQLError) Cause() error { return e.originalError }

type Store struct {
	Db     *sql.DB
	Params string
	Schema string
	Table  string
}

// parseConnection converts postgis:// and postgres:// URLs into
// connection params and extracts the schema param.
func parseConnection(connection string) (params, schema string, err error) {
	if strings.HasPrefix(connection, "postgis://") {
		connection = strings.Replace(connection, "postgis", "postgres", 1)
	}
	params = connection
	if strings.HasPrefix(connection, "postgres://") || strings.HasPrefix(connection, "postgresql://") {
		var schemaParam string
		if i := strings.Index(connection, "?"); i >= 0 {
			// pq.ParseURL rejects unknown query params
			var query []string
			for _, q := range strings.Split(connection[i+1:], "&") {
				if strings.HasPrefix(q, "schema=") {
					schemaParam = strings.TrimPrefix(q, "schema=")
					continue
				}
				query = append(query, q)
			}
			connection = connection[:i]
			if len(query) > 0 {
				connection += "?" + strings.Join(query, "&")
			}
		}
		params, err = pq.ParseURL(connection)
		if err != nil {
			return "", "", errors.Wrap(err, "parsing connection")
		}
		if schemaParam != "" {
			params += " schema=" + schemaParam
		}
	}
	params = disableDefaultSslOnLocalhost(params)
	params, schema = stripParam(params, "schema")
	if schema == "" {
		schema = "public"
	}
	return params, schema, nil
}

// Open connects to the database and creates table if it does not exist.
// The connection accepts a schema param for the table schema.
func Open(connection, table string) (*Store, error) {
	if table == "" {
		return nil, errors.New("missing table name")
	}
	params, schema, err := parseConnection(connection)
	if err != nil {
		return nil, err
	}
	s := &Store{Params: params, Schema: schema, Table: table}
	s.Db, err = sql.Open("postgres", params)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := s.Db.Ping(); err != nil {
		s.Db.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	if err := s.Init(); err != nil {
		s.Db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) fullName() string {
	return pq.QuoteIdentifier(s.Schema) + "." + pq.QuoteIdentifier(s.Table)
}

// Init creates the schema and table.
func (s *Store) Init() error {
	if s.Schema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(s.Schema))
		if _, err := s.Db.Exec(sql); err != nil {
			return &SQLError{sql, err}
		}
	}
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id SERIAL PRIMARY KEY,
    bbox TEXT,
    layers TEXT[],
    arcs INTEGER,
    created TIMESTAMP WITH TIME ZONE DEFAULT now(),
    topology JSONB NOT NULL
)`, s.fullName())
	if _, err := s.Db.Exec(sql); err != nil {
		return &SQLError{sql, err}
	}
	return nil
}

// Insert stores t and returns the id of the new row.
func (s *Store) Insert(bbox string, t *topology.Topology) (int64, error) {
	doc, err := json.Marshal(t)
	if err != nil {
		return 0, errors.Wrap(err, "encoding topology")
	}
	sql := fmt.Sprintf(`INSERT INTO %s (bbox, layers, arcs, topology) VALUES ($1, $2, $3, $4) RETURNING id`, s.fullName())
	var id int64
	err = s.Db.QueryRow(sql, bbox, pq.Array(t.Layers()), len(t.Arcs), string(doc)).Scan(&id)
	if err != nil {
		return 0, &SQLError{sql, err}
	}
	log.Printf("[info] stored topology %d in %s.%s", id, s.Schema, s.Table)
	return id, nil
}

// Deliver returns a pipeline.Deliverer that inserts each topology with
// bbox.
func (s *Store) Deliver(bbox string) pipeline.Deliverer {
	return func(t *topology.Topology) error {
		_, err := s.Insert(bbox, t)
		return err
	}
}

// Get returns the stored topology with id.
func (s *Store) Get(id int64) (*topology.Topology, error) {
	sql := fmt.Sprintf(`SELECT topology FROM %s WHERE id = $1`, s.fullName())
	var doc []byte
	if err := s.Db.QueryRow(sql, id).Scan(&doc); err != nil {
		return nil, &SQLError{sql, err}
	}
	t := &topology.Topology{}
	if err := json.Unmarshal(doc, t); err != nil {
		return nil, errors.Wrap(err, "decoding topology")
	}
	return t, nil
}

func (s *Store) Close() error {
	return s.Db.Close()
}
