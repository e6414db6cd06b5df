package sqlstore_test

import (
	"database/sql"
	"testing"

	"github.com/corverroos/truss"
	_ "github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`
	create table appraise_events (
		id                 bigint not null auto_increment,
		stream_id          varchar(36) not null,
		` + "`sequence`" + `  bigint not null,
		type               varchar(255) not null,
		object             longblob not null,
		created_at         datetime(3) not null,

		primary key (id),

		unique by_stream_id_sequence (stream_id, ` + "`sequence`" + `)
	)`,
	`
	create table appraise_snapshots (
		doc_type           varchar(255) not null,
		doc_id             varchar(255) not null,
		doc                longblob not null,
		updated_at         datetime(3) not null,

		primary key (doc_type, doc_id)
	)
`,
}

func ConnectForTesting(t *testing.T) *sql.DB {
	return truss.ConnectForTesting(t, migrations...)
}
